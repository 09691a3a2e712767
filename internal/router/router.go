package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"HabitPact/internal/handler"
	"HabitPact/internal/middleware"
)

// Register 注册全部路由，extra 为额外的全局中间件（如 tracing）
func Register(h *server.Hertz, extra ...app.HandlerFunc) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(extra...)
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	// 习惯
	habits := v1.Group("/habits")
	{
		habits.POST("", handler.CreateHabit)
		habits.GET("/:habit_id", handler.GetHabit)
		habits.POST("/:habit_id/archive", handler.ArchiveHabit)
		habits.GET("/:habit_id/check-ins", handler.GetCheckInHistory)
		habits.POST("/:habit_id/freeze", handler.ConsumeFreeze)
		habits.GET("/:habit_id/freeze", handler.GetFreezeBalance)
		habits.POST("/:habit_id/restore", handler.RestoreStreak)
	}

	// 打卡，按调用方限流
	checkIns := v1.Group("/check-ins")
	checkIns.Use(middleware.CheckInRateLimitMiddleware())
	{
		checkIns.POST("", handler.SubmitCheckIn)
		checkIns.POST("/:log_id/verify", handler.VerifyCheckIn)
		checkIns.POST("/:log_id/dispute", handler.DisputeCheckIn)
	}

	// 挑战
	challenges := v1.Group("/challenges")
	{
		challenges.POST("", handler.CreateChallenge)
		challenges.GET("/:id", handler.GetChallenge)
		challenges.POST("/:id/join", handler.JoinChallenge)
		challenges.POST("/:id/stake", handler.ConfirmStake)
		challenges.PATCH("/:id/stake", handler.UpdateStake)
		challenges.POST("/:id/cancel", handler.CancelChallenge)
		challenges.POST("/:id/settle", handler.SettleChallenge)
	}

	// 账本导出
	v1.GET("/users/:user_id/ledger", handler.ListUserLedger)

	// 运营
	ops := v1.Group("/ops")
	{
		ops.GET("/ledger/pending", handler.ListPendingLedger)
		ops.GET("/challenges/:id/ledger", handler.VerifyChallengeLedger)
		ops.GET("/alerts", handler.ListAlerts)
		ops.POST("/alerts/:alert_id/resolve", handler.ResolveAlert)
		ops.POST("/challenges/:id/release-hold", handler.ReleaseHold)
	}
}
