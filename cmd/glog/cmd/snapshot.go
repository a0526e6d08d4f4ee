/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/store"
)

func newSnapshotCmd() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Flush a stream and list its archives",
		Long: `Rotate the cache of a stream into an archive when it meets the thresholds,
apply retention, and print the remaining archive paths. The status line goes
to stderr.

Examples:
  glog snapshot --proto events
  glog snapshot --proto events --order desc --min-records 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, _ := cmd.Flags().GetString("proto")
			orderName, _ := cmd.Flags().GetString("order")
			noFlush, _ := cmd.Flags().GetBool("no-flush")
			minRecords, _ := cmd.Flags().GetInt("min-records")
			minBytes, _ := cmd.Flags().GetInt64("min-bytes")

			order, err := store.ParseFileOrder(orderName)
			if err != nil {
				return err
			}

			h, closeFn, err := openStream(cmd, proto, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := h.ArchiveSnapshot(store.SnapshotCondition{
				Flush:      !noFlush,
				MinRecords: minRecords,
				MinBytes:   minBytes,
			}, order)
			fmt.Fprintln(cmd.ErrOrStderr(), snap.Status)
			if err != nil {
				return err
			}
			for _, f := range snap.Files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}

	snapshotCmd.Flags().String("proto", "", "Stream name (required)")
	snapshotCmd.Flags().String("root", "", "Root directory (default from config)")
	snapshotCmd.Flags().String("order", "asc", "Archive order: asc, desc or none")
	snapshotCmd.Flags().Bool("no-flush", false, "List archives without rotating the cache")
	snapshotCmd.Flags().Int("min-records", 0, "Rotate only with at least this many cached records")
	snapshotCmd.Flags().Int64("min-bytes", 0, "Rotate only with at least this many cached payload bytes")
	_ = snapshotCmd.MarkFlagRequired("proto")
	return snapshotCmd
}
