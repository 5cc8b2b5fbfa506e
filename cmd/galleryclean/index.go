package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the library into the media index",
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.ReadOnly {
		return fmt.Errorf("cannot index into a read-only database")
	}

	logger := setupLogger(cfg.Logging)
	e, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	stats, err := e.reindexer.RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	snap := e.catalog.Snapshot()
	var total int64
	for _, it := range snap.Items {
		total += it.SizeOrZero()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %s files (%s pruned, %s failed)\n",
		humanize.Comma(int64(stats.Indexed)), humanize.Comma(int64(stats.Pruned)), humanize.Comma(int64(stats.Failed)))
	fmt.Fprintf(out, "Library: %s items, %s\n", humanize.Comma(int64(len(snap.Items))), humanize.Bytes(uint64(total)))
	return nil
}
