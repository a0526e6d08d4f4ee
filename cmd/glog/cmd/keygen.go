/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/crypt"
)

func newKeygenCmd() *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 server key pair",
		Long: `Generate a server key pair for encrypted streams.

The public key (128 hex characters) goes into writer configuration. The
private key (64 hex characters) is needed to read encrypted archives.

Examples:
  glog keygen
  glog keygen --out ./server.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			pair, err := crypt.GenerateKeyPair()
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, []byte(pair.PrivateKey+"\n"), 0600); err != nil {
					return fmt.Errorf("failed to write private key: %w", err)
				}
				cmd.Printf("private_key_file: %s\n", out)
			} else {
				cmd.Printf("private_key: %s\n", pair.PrivateKey)
			}
			cmd.Printf("public_key: %s\n", pair.PublicKey)
			return nil
		},
	}

	keygenCmd.Flags().String("out", "", "Write the private key to this file instead of printing it")
	return keygenCmd
}
