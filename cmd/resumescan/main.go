// Package main 是简历扫描的命令行入口。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"resume-scanner/internal/config"
	"resume-scanner/internal/logger"
	"resume-scanner/internal/processor"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "resumescan",
	Short:         "Extract structured data from PDF resumes",
	Long:          "resumescan extracts text from a PDF resume, asks a language model for structured JSON and persists the result to a flat archive or a vector collection.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
}

// loadConfig 加载配置并初始化日志；缺少LLM凭据时返回配置错误，命令不做任何处理
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			return nil, processor.NewConfigurationError(err)
		}
		return nil, err
	}
	logger.InitWithWriter(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       "pretty",
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}, os.Stderr)
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
