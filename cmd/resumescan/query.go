package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	scanapp "resume-scanner/internal/app"
	"resume-scanner/internal/config"
)

var queryLimit int

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Similarity search over indexed resumes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "Number of results")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Sink.Mode != config.SinkModeIndexed {
		return fmt.Errorf("query 需要 sink.mode=indexed，当前为 %s", cfg.Sink.Mode)
	}

	ctx := cmd.Context()
	application, err := scanapp.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	results, err := application.IndexedSink.Query(ctx, strings.Join(args, " "), queryLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tKEY\tNAME")
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%s\t%s\n", r.Score, r.Key, r.Name)
	}
	return w.Flush()
}
