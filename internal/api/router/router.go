package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resume-scanner/internal/api/handler"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	resume := api.Group("/resume")
	resume.POST("/scan", resumeHandler.HandleScan)
	resume.GET("/latest", resumeHandler.HandleLatest)
	resume.GET("/search", resumeHandler.HandleSearch)

	// 添加健康检查
	api.GET("/health", resumeHandler.HandleHealth)
}

// RegisterMetrics 暴露 Prometheus 指标
func RegisterMetrics(h *server.Hertz) {
	h.GET("/metrics", adaptor.HertzHandler(promhttp.Handler()))
}
