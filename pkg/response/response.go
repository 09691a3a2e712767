package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusOf 根据错误类型映射 HTTP 状态码
func StatusOf(err error) int {
	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	if def.Code == errors.TooManyRequests.Code {
		return http.StatusTooManyRequests
	}

	switch def.Kind {
	case errors.KindValidation:
		return http.StatusBadRequest // 400
	case errors.KindNotFound:
		return http.StatusNotFound // 404
	case errors.KindConflict:
		return http.StatusConflict // 409
	case errors.KindTransient:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// describe 一致性错误和未知错误不向客户端暴露内部信息
func describe(err error) (string, string) {
	def, ok := errors.As(err)
	if !ok {
		return errors.InternalError.Code, errors.InternalError.Message
	}
	if def.Kind == errors.KindIntegrity || def.Kind == errors.KindInternal {
		return def.Code, errors.InternalError.Message
	}
	return def.Code, def.Message
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	code, message := describe(err)

	c.JSON(StatusOf(err), ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}
