package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
)

// CallerHeader 网关鉴权后写入的调用方用户 ID
const CallerHeader = "X-User-Id"

// GetCallerID 鉴权由上游网关完成，这里只读取其透传的用户标识
func GetCallerID(ctx context.Context, c *app.RequestContext) (string, bool) {
	id := string(c.GetHeader(CallerHeader))
	return id, id != ""
}
