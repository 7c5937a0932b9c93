package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"civic-governance-backend/service"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var statusByCode = map[service.ErrorCode]int{
	service.ErrorCodePermissionDenied: http.StatusForbidden,
	service.ErrorCodePhaseViolation:   http.StatusConflict,
	service.ErrorCodeCreditExhausted:  http.StatusUnprocessableEntity,
	service.ErrorCodeNotFound:         http.StatusNotFound,
	service.ErrorCodeDuplicateAction:  http.StatusConflict,
	service.ErrorCodeSelfReference:    http.StatusUnprocessableEntity,
	service.ErrorCodeInvalidInput:     http.StatusBadRequest,
	service.ErrorCodeProofRejected:    http.StatusUnprocessableEntity,
}

// StatusOf maps an engine error to its HTTP status.
func StatusOf(err error) int {
	if status, ok := statusByCode[service.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError 写入错误响应，内部错误不向客户端暴露细节
func respondError(ctx *gin.Context, err error) {
	e, ok := service.AsError(err)
	if !ok {
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal error",
			Code:  service.ErrorCodeInternal.String(),
		})
		return
	}
	ctx.JSON(StatusOf(err), ErrorResponse{
		Error:   e.Error(),
		Code:    e.Code.String(),
		Details: e.Details,
	})
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, ErrorResponse{
		Error: msg,
		Code:  service.ErrorCodeInvalidInput.String(),
	})
}

// queryUint 读取可选的无符号查询参数
func queryUint(ctx *gin.Context, name string) (uint64, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, true
	}
	return parseUint(ctx, name, raw)
}

func parseUint(ctx *gin.Context, name, raw string) (uint64, bool) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return v, true
}

func queryInt(ctx *gin.Context, name string, def int) (int, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return v, true
}
