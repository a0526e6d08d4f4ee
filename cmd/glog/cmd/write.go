/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/store"
)

func newWriteCmd() *cobra.Command {
	writeCmd := &cobra.Command{
		Use:   "write",
		Short: "Append stdin lines to a stream",
		Long: `Append every non-empty line of stdin as one record, then flush the cache
into an archive. Writes are synchronous so that every failure is reported.

Examples:
  echo "hello" | glog write --proto events
  cat app.log | glog write --proto events --root ./data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, _ := cmd.Flags().GetString("proto")
			noFlush, _ := cmd.Flags().GetBool("no-flush")

			h, closeFn, err := openStream(cmd, proto, func(c *store.Config) { c.Async = false })
			if err != nil {
				return err
			}
			defer closeFn()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), codec.MaxRecordLength+1)
			written, line := 0, 0
			for scanner.Scan() {
				line++
				if len(scanner.Bytes()) == 0 {
					continue
				}
				if err := h.Write(scanner.Bytes()); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				written++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("line %d: %w", line+1, err)
			}

			if !noFlush {
				if err := h.Flush(); err != nil {
					return err
				}
			}
			cmd.Printf("wrote %d records to %s\n", written, proto)
			return nil
		},
	}

	writeCmd.Flags().String("proto", "", "Stream name (required)")
	writeCmd.Flags().String("root", "", "Root directory (default from config)")
	writeCmd.Flags().Bool("no-flush", false, "Leave records in the cache file")
	_ = writeCmd.MarkFlagRequired("proto")
	return writeCmd
}
