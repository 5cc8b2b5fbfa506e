package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"galleryclean/internal/cleanup"
)

var (
	reportCategory    string
	reportThresholdMB int
	reportDays        int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List cleanup candidates without deleting anything",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportCategory, "category", "", "only this category (duplicates, large_videos, old_media)")
	reportCmd.Flags().IntVar(&reportThresholdMB, "threshold-mb", 0, "large video threshold in MB (default from config)")
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "old media age in days (default from config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	e, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	params := e.params()
	if reportThresholdMB > 0 {
		params.LargeVideoThresholdMB = reportThresholdMB
	}
	if reportDays > 0 {
		params.OldMediaDays = reportDays
	}

	categories := cleanup.Categories
	if reportCategory != "" {
		c, err := cleanup.ParseCategory(reportCategory)
		if err != nil {
			return err
		}
		categories = []cleanup.Category{c}
	}

	var all []cleanup.Group
	for _, c := range categories {
		groups, err := e.detector.Detect(cmd.Context(), c, params)
		if err != nil {
			return fmt.Errorf("%s scan: %w", c, err)
		}
		all = append(all, groups...)
	}

	return writeReport(cmd.OutOrStdout(), all)
}

func writeReport(out io.Writer, groups []cleanup.Group) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tGROUP\tITEMS\tSIZE\tFIRST ITEM")
	for _, g := range groups {
		first := ""
		if len(g.Items) > 0 {
			first = g.Items[0].Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", g.Category, g.ID, g.Count, humanize.Bytes(uint64(g.TotalSize)), first)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%d groups, %s reclaimable\n", len(groups), humanize.Bytes(uint64(cleanup.TotalSize(groups))))
	return err
}
