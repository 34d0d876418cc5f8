package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"resume-scanner/internal/api/handler"
	"resume-scanner/internal/api/router"
	scanapp "resume-scanner/internal/app"
	"resume-scanner/internal/config"
	"resume-scanner/internal/constants"
	appCoreLogger "resume-scanner/internal/logger"
	"resume-scanner/internal/processor"
	"resume-scanner/internal/tracing"
)

var version = "1.0.0" //nolint:gochecknoglobals

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file (默认在当前目录和 ~/.resume-scanner 查找 config.yaml)")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		appCoreLogger.Init(appCoreLogger.Config{Level: "info", Format: "pretty"})
		if errors.Is(err, config.ErrMissingCredential) {
			appCoreLogger.Fatal().Err(processor.NewConfigurationError(err)).Msg("缺少LLM凭据，拒绝启动")
		}
		appCoreLogger.Fatal().Err(err).Msg("加载配置失败")
	}
	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.Infof("配置加载成功, sink=%s, version=%s", cfg.Sink.Mode, version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化追踪失败: %v", err)
	}

	application, err := scanapp.New(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化应用失败: %v", err)
	}
	defer application.Close()

	handlerOpts := []handler.HandlerOption{handler.WithMaxUploadMB(cfg.Server.MaxUploadMB)}
	if application.FlatSink != nil {
		handlerOpts = append(handlerOpts, handler.WithArchive(application.FlatSink))
	}
	if application.IndexedSink != nil {
		handlerOpts = append(handlerOpts, handler.WithSearcher(application.IndexedSink))
	}
	resumeHandler := handler.NewResumeHandler(application.Pipeline, handlerOpts...)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize((cfg.Server.MaxUploadMB+1)<<20),
		server.WithExitWaitTime(5*time.Second),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s -> %d (%s)", string(ctx.Method()), string(ctx.Path()),
			ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, resumeHandler)
	if cfg.Server.EnableMetrics {
		processor.RegisterMetrics()
		router.RegisterMetrics(h)
	}
	glog.Info("HTTP路由注册成功")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("%s HTTP 服务器启动中，监听地址: %s", constants.ServiceName, cfg.Server.Address)
		if err := h.Run(); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		glog.Info("接收到终止信号，正在优雅退出...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			glog.Errorf("服务器关闭失败: %v", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			glog.Errorf("关闭追踪导出器失败: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		glog.Errorf("服务退出: %v", err)
		application.Close()
		os.Exit(1)
	}
	glog.Info("优雅退出完成")
}
