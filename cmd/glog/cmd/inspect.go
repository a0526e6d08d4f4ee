/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/codec"
)

// fileReport is the structural summary of one log file.
type fileReport struct {
	header    codec.Header
	size      int
	headerLen int
	frames    int
	damaged   int
	tail      int
	largest   int
	stored    int64
}

// inspectFile walks the frames of data without decoding payloads.
func inspectFile(data []byte) (fileReport, error) {
	h, pos, err := codec.DecodeHeader(data)
	if err != nil {
		return fileReport{}, err
	}
	rep := fileReport{header: h, size: len(data), headerLen: pos}
	for pos < len(data) {
		n, stored, err := codec.ScanFrame(data[pos:], h)
		if err == nil {
			rep.frames++
			rep.stored += int64(stored)
			if n > rep.largest {
				rep.largest = n
			}
			pos += n
			continue
		}
		next := codec.Resync(data[pos+1:])
		if next < 0 {
			rep.tail = len(data) - pos
			break
		}
		rep.damaged++
		pos += 1 + next
	}
	return rep, nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the header and frame statistics of a log file",
		Long: `Print the header of a log file and count its frames, damaged regions and
unrecoverable trailing bytes. Payloads are not decoded, so no key is needed.

Example:
  glog inspect data/events-20250101.glog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rep, err := inspectFile(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			cmd.Printf("file:          %s\n", args[0])
			cmd.Printf("version:       %s\n", rep.header.Version)
			cmd.Printf("proto:         %s\n", rep.header.ProtoName)
			if rep.header.Version == codec.VersionRecovery {
				cmd.Printf("compress:      %s\n", rep.header.Compress)
				cmd.Printf("encrypt:       %s\n", rep.header.Encrypt)
			}
			cmd.Printf("size:          %d\n", rep.size)
			cmd.Printf("header bytes:  %d\n", rep.headerLen)
			cmd.Printf("frames:        %d\n", rep.frames)
			cmd.Printf("largest frame: %d\n", rep.largest)
			cmd.Printf("stored bytes:  %d\n", rep.stored)
			cmd.Printf("damaged:       %d\n", rep.damaged)
			cmd.Printf("tail bytes:    %d\n", rep.tail)
			return nil
		},
	}
}
