/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aura-assist/gateway/config"
	"github.com/aura-assist/gateway/internal/bridge"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the WebSocket-to-native-protocol bridge",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := config.LoadConfig()
		log := newLogger()

		server := bridge.NewServer(cfg.Bridge.BackendAddr, log)
		addr := fmt.Sprintf(":%d", cfg.Bridge.ListenPort)
		if err := server.Run(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "bridge error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}
