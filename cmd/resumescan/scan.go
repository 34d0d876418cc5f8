package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	scanapp "resume-scanner/internal/app"
	"resume-scanner/internal/processor"
	"resume-scanner/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file.pdf>",
	Short: "Run one extraction pipeline over a PDF resume",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fmt.Errorf("只支持PDF文件: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	reporter := processor.ReporterFunc(func(runID string, st processor.Status) {
		fmt.Fprintf(errOut, "[%s] %s: %s\n", strings.ToUpper(string(st.Level)), st.Code, st.Message)
	})

	ctx := cmd.Context()
	application, err := scanapp.New(ctx, cfg, scanapp.WithReporter(reporter))
	if err != nil {
		return err
	}
	defer application.Close()

	result, runErr := application.Pipeline.Run(ctx, types.RawDocument{
		Filename:   filepath.Base(path),
		Data:       data,
		UploadedAt: time.Now(),
	})
	if runErr != nil {
		return runErr
	}
	return writeRecord(cmd.OutOrStdout(), result.Record)
}

// writeRecord 以 4 空格缩进输出记录
func writeRecord(w io.Writer, record types.StructuredRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(record)
}
