package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"civic-governance-backend/handlers"
	"civic-governance-backend/model"
	"civic-governance-backend/service"
)

// ElectionController 处理选举相关API请求
type ElectionController struct {
	elections service.ElectionService
}

// NewElectionController 创建选举控制器
func NewElectionController(elections service.ElectionService) *ElectionController {
	return &ElectionController{elections: elections}
}

// RegisterRoutes 注册API路由，写操作挂在需要认证的分组下
func (c *ElectionController) RegisterRoutes(public, protected *gin.RouterGroup) {
	elections := public.Group("/elections")
	{
		elections.GET("", c.Summary)
		elections.GET("/pre/candidates", c.PreElectionCandidates)
		elections.GET("/pre/candidates/:address", c.PreElectionCandidate)
		elections.GET("/pre/votes/:voter", c.PreElectionVote)
		elections.GET("/candidates", c.ElectionCandidates)
		elections.GET("/votes/:voter", c.ElectionVote)
		elections.GET("/winners", c.Winners)
	}

	writes := protected.Group("/elections")
	{
		writes.POST("/schedule", c.Schedule)
		writes.POST("/pre/candidates", c.RegisterCandidate)
		writes.POST("/pre/votes", c.VoteOnPreElections)
		writes.POST("/pre/close", c.ClosePreElections)
		writes.POST("/votes", c.VoteOnElections)
		writes.POST("/close", c.CloseElections)
	}
}

// Summary 选举日历与计数
func (c *ElectionController) Summary(ctx *gin.Context) {
	summary, err := c.elections.Summary(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// Schedule 安排下一轮选举（管理员）
func (c *ElectionController) Schedule(ctx *gin.Context) {
	var req model.ScheduleElectionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	err := c.elections.ScheduleNextElections(ctx.Request.Context(), handlers.Caller(ctx),
		time.Unix(req.PreElectionsStart, 0),
		time.Unix(req.PreElectionsEnd, 0),
		time.Unix(req.ElectionsStart, 0),
		time.Unix(req.ElectionsEnd, 0),
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// RegisterCandidate 注册预选候选人（管理员）
func (c *ElectionController) RegisterCandidate(ctx *gin.Context) {
	var req model.CandidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.elections.RegisterPreElectionCandidate(ctx.Request.Context(), handlers.Caller(ctx), req.Address); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusCreated)
}

// VoteOnPreElections 预选投票（公民）
func (c *ElectionController) VoteOnPreElections(ctx *gin.Context) {
	var req model.BallotRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.elections.VoteOnPreElections(ctx.Request.Context(), handlers.Caller(ctx), req.Candidate); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ClosePreElections 结束预选并晋级候选人（管理员）
func (c *ElectionController) ClosePreElections(ctx *gin.Context) {
	promoted, err := c.elections.ClosePreElections(ctx.Request.Context(), handlers.Caller(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"candidates": promoted})
}

// VoteOnElections 正式选举投票（公民）
func (c *ElectionController) VoteOnElections(ctx *gin.Context) {
	var req model.BallotRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if err := c.elections.VoteOnElections(ctx.Request.Context(), handlers.Caller(ctx), req.Candidate); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// CloseElections 结束选举并分配席位额度（管理员）
func (c *ElectionController) CloseElections(ctx *gin.Context) {
	winners, err := c.elections.CloseElections(ctx.Request.Context(), handlers.Caller(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"winners": winners})
}

func (c *ElectionController) PreElectionCandidates(ctx *gin.Context) {
	list, err := c.elections.PreElectionCandidates(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"candidates": list})
}

func (c *ElectionController) PreElectionCandidate(ctx *gin.Context) {
	candidate, err := c.elections.PreElectionCandidate(ctx.Request.Context(), ctx.Param("address"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, candidate)
}

func (c *ElectionController) PreElectionVote(ctx *gin.Context) {
	vote, err := c.elections.PreElectionVote(ctx.Request.Context(), ctx.Param("voter"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, vote)
}

func (c *ElectionController) ElectionCandidates(ctx *gin.Context) {
	list, err := c.elections.ElectionCandidates(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"candidates": list})
}

func (c *ElectionController) ElectionVote(ctx *gin.Context) {
	vote, err := c.elections.ElectionVote(ctx.Request.Context(), ctx.Param("voter"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, vote)
}

// Winners round 为空或 0 时返回最近一轮
func (c *ElectionController) Winners(ctx *gin.Context) {
	round, ok := queryUint(ctx, "round")
	if !ok {
		return
	}
	winners, err := c.elections.Winners(ctx.Request.Context(), round)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"winners": winners})
}
