package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"civic-governance-backend/handlers"
	"civic-governance-backend/model"
	"civic-governance-backend/service"
)

// ContentController 内容阅读门槛：测验、答案哈希、挑战位置与阅读证明
type ContentController struct {
	votings   service.VotingService
	proofRate gin.HandlerFunc
}

// NewContentController proofRate 限制阅读证明的提交频率，可以为空
func NewContentController(votings service.VotingService, proofRate gin.HandlerFunc) *ContentController {
	return &ContentController{votings: votings, proofRate: proofRate}
}

// RegisterRoutes 注册API路由
func (c *ContentController) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/content/completion", c.Completion)

	content := protected.Group("/content")
	{
		content.POST("/quiz", c.AssignQuiz)
		content.POST("/answers", c.AddAnswer)
		content.GET("/challenge", c.Challenge)
		if c.proofRate != nil {
			content.POST("/proof", c.proofRate, c.CompleteQuiz)
		} else {
			content.POST("/proof", c.CompleteQuiz)
		}
	}
}

// targetFromQuery 解析 kind、voting_key、article_key 查询参数
func targetFromQuery(ctx *gin.Context) (model.ContentTarget, bool) {
	kind, ok := model.ParseContentKind(ctx.Query("kind"))
	if !ok {
		badRequest(ctx, "invalid kind")
		return model.ContentTarget{}, false
	}
	target := model.ContentTarget{
		Kind:       kind,
		VotingKey:  ctx.Query("voting_key"),
		ArticleKey: ctx.Query("article_key"),
	}
	if target.VotingKey == "" {
		badRequest(ctx, "voting_key is required")
		return model.ContentTarget{}, false
	}
	return target, true
}

// AssignQuiz 管理员为内容设置测验哈希
func (c *ContentController) AssignQuiz(ctx *gin.Context) {
	var req model.QuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.votings.AssignQuizHash(ctx.Request.Context(), handlers.Caller(ctx), req.Target(), req.QuizHash); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// AddAnswer 管理员按顺序追加答案哈希
func (c *ContentController) AddAnswer(ctx *gin.Context) {
	var req model.AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	count, err := c.votings.AddHashedAnswer(ctx.Request.Context(), handlers.Caller(ctx), req.Target(), req.AnswerHash)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"answers": count})
}

// Challenge 返回调用者需要回答的答案位置，account 参数可查询其他账户
func (c *ContentController) Challenge(ctx *gin.Context) {
	target, ok := targetFromQuery(ctx)
	if !ok {
		return
	}
	account := ctx.DefaultQuery("account", handlers.Caller(ctx))
	indexes, err := c.votings.GetAccountChallengeIndexes(ctx.Request.Context(), target, account)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": account, "target": target, "indexes": indexes})
}

// CompleteQuiz 提交阅读证明
func (c *ContentController) CompleteQuiz(ctx *gin.Context) {
	var req model.ReadProofRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.votings.CompleteContentReadQuiz(ctx.Request.Context(), handlers.Caller(ctx), req.Target(), req.Answers); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"completed": true})
}

// Completion 查询账户是否已通过某项内容的测验
func (c *ContentController) Completion(ctx *gin.Context) {
	target, ok := targetFromQuery(ctx)
	if !ok {
		return
	}
	account := ctx.Query("account")
	if account == "" {
		badRequest(ctx, "account is required")
		return
	}
	completion, err := c.votings.QuizCompletion(ctx.Request.Context(), target, account)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, completion)
}
