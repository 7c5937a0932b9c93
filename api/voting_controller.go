package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"civic-governance-backend/handlers"
	"civic-governance-backend/model"
	"civic-governance-backend/service"
)

// VotingController 处理投票周期、提案、评论与审批请求
type VotingController struct {
	votings service.VotingService
}

// NewVotingController 创建提案控制器
func NewVotingController(votings service.VotingService) *VotingController {
	return &VotingController{votings: votings}
}

// RegisterRoutes 注册API路由
func (c *VotingController) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/cycles", c.CycleOverview)
	public.GET("/cycles/:index/credits", c.CycleCredits)
	protected.POST("/cycles/anchor", c.Anchor)

	votings := public.Group("/votings")
	{
		votings.GET("", c.ListVotings)
		votings.GET("/:key", c.GetVoting)
		votings.GET("/:key/articles", c.ListArticles)
		votings.GET("/:key/articles/:article", c.GetArticle)
	}

	writes := protected.Group("/votings")
	{
		writes.POST("", c.ScheduleVoting)
		writes.DELETE("/:key", c.CancelVoting)
		writes.POST("/:key/approve", c.ApproveVoting)
		writes.POST("/:key/articles", c.PublishArticle)
		writes.POST("/:key/articles/:article/approve", c.ApproveArticle)
		writes.POST("/:key/articles/:article/response", c.PublishResponse)
		writes.POST("/:key/articles/:article/response/approve", c.ApproveResponse)
	}
}

// CycleOverview 当前周期与锚点
func (c *VotingController) CycleOverview(ctx *gin.Context) {
	overview, err := c.votings.CycleOverview(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, overview)
}

// CycleCredits 指定周期内每个政治参与者已用的额度
func (c *VotingController) CycleCredits(ctx *gin.Context) {
	index, ok := parseUint(ctx, "index", ctx.Param("index"))
	if !ok {
		return
	}
	credits, err := c.votings.CycleCredits(ctx.Request.Context(), index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cycle_index": index, "credits": credits})
}

// Anchor 设置第一个投票周期的开始时间（管理员）
func (c *VotingController) Anchor(ctx *gin.Context) {
	var req model.AnchorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.votings.SetFirstVotingCycleStartDate(ctx.Request.Context(), handlers.Caller(ctx), time.Unix(req.FirstCycleStart, 0)); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ListVotings 分页列出提案，最新的在前
func (c *VotingController) ListVotings(ctx *gin.Context) {
	offset, ok := queryInt(ctx, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(ctx, "limit", 20)
	if !ok {
		return
	}
	list, err := c.votings.ListVotings(ctx.Request.Context(), offset, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"votings": list})
}

func (c *VotingController) GetVoting(ctx *gin.Context) {
	voting, err := c.votings.GetVoting(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, voting)
}

// ScheduleVoting 创建新提案（政治参与者）
func (c *VotingController) ScheduleVoting(ctx *gin.Context) {
	var req model.ScheduleVotingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	voting, err := c.votings.ScheduleNewVoting(ctx.Request.Context(), handlers.Caller(ctx), req.ContentHash, time.Unix(req.StartDate, 0), req.Budget)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, voting)
}

// CancelVoting 创建者在开始前撤回提案
func (c *VotingController) CancelVoting(ctx *gin.Context) {
	if err := c.votings.CancelMyVoting(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *VotingController) ApproveVoting(ctx *gin.Context) {
	if err := c.votings.ApproveVoting(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *VotingController) ListArticles(ctx *gin.Context) {
	list, err := c.votings.ListArticles(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"articles": list})
}

func (c *VotingController) GetArticle(ctx *gin.Context) {
	article, err := c.votings.GetArticle(ctx.Request.Context(), ctx.Param("key"), ctx.Param("article"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, article)
}

// PublishArticle 发布正反方评论（政治参与者）
func (c *VotingController) PublishArticle(ctx *gin.Context) {
	var req model.PublishArticleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	article, err := c.votings.PublishProConArticle(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key"), req.ContentHash, req.IsProSide)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, article)
}

// PublishResponse 提案创建者回应评论
func (c *VotingController) PublishResponse(ctx *gin.Context) {
	var req model.PublishResponseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	err := c.votings.PublishProConArticleResponse(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key"), ctx.Param("article"), req.ContentHash)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusCreated)
}

func (c *VotingController) ApproveArticle(ctx *gin.Context) {
	if err := c.votings.ApproveArticle(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key"), ctx.Param("article")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *VotingController) ApproveResponse(ctx *gin.Context) {
	if err := c.votings.ApproveArticleResponse(ctx.Request.Context(), handlers.Caller(ctx), ctx.Param("key"), ctx.Param("article")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
