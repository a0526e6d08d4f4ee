/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/config"
	"github.com/ssargent/glogstore/pkg/store"
)

type recordLine struct {
	Index   int    `json:"index"`
	Payload []byte `json:"payload"`
}

func newReadCmd() *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read <file>",
		Short: "Decode every record of a log file",
		Long: `Decode the records of an archive or cache file in order. Damaged frames
are skipped and counted; the summary goes to stderr.

Encrypted files need the server private key: --key, --key-file, or the
key file named in the configuration.

Examples:
  glog read data/events-20250101.glog
  glog read data/events.glogcache --format hex
  glog read secure.glog --key-file ./glog.key --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text", "hex", "json":
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			key, err := privateKey(cmd)
			if err != nil {
				return err
			}
			var opts []store.ReaderOption
			if key != "" {
				opts = append(opts, store.WithPrivateKey(key))
			}
			opts = append(opts, store.WithReaderLogger(container.Logger()))

			reader, err := store.OpenReader(args[0], opts...)
			if err != nil {
				return err
			}
			defer reader.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for {
				res, err := reader.Next()
				if err != nil {
					return err
				}
				if res.Kind == store.ResultEOF {
					break
				}
				if res.Kind != store.ResultRecord {
					continue
				}
				switch format {
				case "text":
					fmt.Fprintf(out, "%s\n", res.Payload)
				case "hex":
					fmt.Fprintln(out, hex.EncodeToString(res.Payload))
				case "json":
					if err := enc.Encode(recordLine{Index: reader.Records() - 1, Payload: res.Payload}); err != nil {
						return err
					}
				}
			}

			h := reader.Header()
			fmt.Fprintf(cmd.ErrOrStderr(), "file: %s, version: %s, proto: %s, records: %d, recovered: %d, broken: %t\n",
				args[0], h.Version, h.ProtoName, reader.Records(), reader.Recovered(), reader.Broken())
			return nil
		},
	}

	readCmd.Flags().String("key", "", "Server private key in hex")
	readCmd.Flags().String("key-file", "", "File holding the server private key")
	readCmd.Flags().String("format", "text", "Output format: text, hex or json")
	return readCmd
}

// privateKey resolves --key, then --key-file, then the configured key file.
func privateKey(cmd *cobra.Command) (string, error) {
	if key, _ := cmd.Flags().GetString("key"); key != "" {
		return key, nil
	}
	if path, _ := cmd.Flags().GetString("key-file"); path != "" {
		return config.ReadKeyFile(path)
	}
	cfg, err := loadConfig(cmd)
	if errors.Is(err, errNoConfig) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cfg.PrivateKey()
}
