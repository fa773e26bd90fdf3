package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xiaozhi-server",
		Short: "Real-time voice gateway: VAD/ASR/dialogue/TTS pipeline for a device fleet",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP+WebSocket server until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runMain(context.Background(), os.Stderr, defaultServerDeps())
			if code != 0 {
				return fmt.Errorf("exit status %d", code)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
