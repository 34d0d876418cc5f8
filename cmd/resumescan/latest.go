package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resume-scanner/internal/config"
	"resume-scanner/internal/constants"
	"resume-scanner/internal/storage"
)

var latestOut string

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recently archived resume",
	Args:  cobra.NoArgs,
	RunE:  runLatest,
}

func init() {
	latestCmd.Flags().StringVarP(&latestOut, "out", "o", "", "Also write the record to this file (e.g. "+constants.DownloadFilename+")")
	rootCmd.AddCommand(latestCmd)
}

func runLatest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Sink.Mode != config.SinkModeFlat {
		return fmt.Errorf("latest 需要 sink.mode=flat，当前为 %s", cfg.Sink.Mode)
	}

	record, err := storage.NewFlatFileSink(cfg.Sink.ArchivePath).Latest(cmd.Context())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := writeRecord(&buf, record); err != nil {
		return err
	}
	if latestOut != "" {
		if err := os.WriteFile(latestOut, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
