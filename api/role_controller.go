package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"civic-governance-backend/handlers"
	"civic-governance-backend/model"
)

// RoleStore 角色登记表
type RoleStore interface {
	handlers.AdminChecker
	Roles(ctx context.Context, account string) ([]model.Role, error)
	Grant(ctx context.Context, account string, role model.Role, credit uint64, source string) error
	Revoke(ctx context.Context, account string, role model.Role) error
}

// GrantQueue 授权消息队列的运维操作
type GrantQueue interface {
	RetryDeadLetters(ctx context.Context) (int, error)
	QueueStats(ctx context.Context) map[string]interface{}
}

// PendingCounter 统计尚未投递的授权意图
type PendingCounter interface {
	PendingGrants(ctx context.Context) (int64, error)
}

// RoleController 角色查询与管理员授权
type RoleController struct {
	roles   RoleStore
	queue   GrantQueue
	pending PendingCounter
}

// NewRoleController 创建角色控制器
func NewRoleController(roles RoleStore, queue GrantQueue, pending PendingCounter) *RoleController {
	return &RoleController{roles: roles, queue: queue, pending: pending}
}

// RegisterRoutes 注册API路由，授权管理需要管理员角色
func (c *RoleController) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/roles/:account", c.GetRoles)

	admin := protected.Group("/admin", handlers.AdminOnly(c.roles))
	{
		admin.POST("/roles", c.GrantRole)
		admin.DELETE("/roles/:account/:role", c.RevokeRole)
		admin.GET("/grants", c.GrantStatus)
		admin.POST("/grants/retry", c.RetryDeadLetters)
	}
}

// GetRoles 查询账户持有的角色
func (c *RoleController) GetRoles(ctx *gin.Context) {
	account := ctx.Param("account")
	roles, err := c.roles.Roles(ctx.Request.Context(), account)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": account, "roles": roles})
}

// GrantRole 管理员直接授予角色
func (c *RoleController) GrantRole(ctx *gin.Context) {
	var req model.RoleGrantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request: "+err.Error())
		return
	}
	if !req.Role.Valid() {
		badRequest(ctx, "unknown role "+string(req.Role))
		return
	}
	if err := c.roles.Grant(ctx.Request.Context(), req.Account, req.Role, req.Credit, "admin:"+handlers.Caller(ctx)); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// RevokeRole 管理员撤销角色
func (c *RoleController) RevokeRole(ctx *gin.Context) {
	role := model.Role(ctx.Param("role"))
	if !role.Valid() {
		badRequest(ctx, "unknown role "+string(role))
		return
	}
	if err := c.roles.Revoke(ctx.Request.Context(), ctx.Param("account"), role); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// GrantStatus 发件箱积压与队列状态
func (c *RoleController) GrantStatus(ctx *gin.Context) {
	pending, err := c.pending.PendingGrants(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	resp := gin.H{"pending": pending}
	if c.queue != nil {
		resp["queue"] = c.queue.QueueStats(ctx.Request.Context())
	}
	ctx.JSON(http.StatusOK, resp)
}

// RetryDeadLetters 重新投递死信队列中的授权消息
func (c *RoleController) RetryDeadLetters(ctx *gin.Context) {
	if c.queue == nil {
		badRequest(ctx, "no grant queue configured")
		return
	}
	n, err := c.queue.RetryDeadLetters(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"requeued": n})
}
