/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aura-assist/gateway/config"
	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/mq"
	"github.com/aura-assist/gateway/internal/storage"
)

// auditCmd represents the audit command.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit pipeline tooling",
}

var auditArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Consume audit events and archive them to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := config.LoadConfig()
		log := newLogger()

		queue, err := mq.NewBackend(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("AUDIT_QUEUE_BACKEND is required")
		}
		defer queue.Close()

		store, err := storage.NewObjectStorage(ctx, cfg)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("AUDIT_ARCHIVE_BACKEND is required")
		}

		archiver := audit.NewArchiver(queue, store, cfg.Audit.Queue, log)
		if err := archiver.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "archiver error: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditArchiveCmd)
}
