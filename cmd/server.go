/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-assist/gateway/internal/assist"
	"github.com/aura-assist/gateway/internal/server"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the native protocol server and the login API",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		var responder server.Responder = assist.Unavailable{}
		if a.cfg.AssistantURL != "" {
			responder = assist.NewClient(a.cfg.AssistantURL)
		} else {
			a.log.Warn().Msg("ASSISTANT_URL not set, replies disabled")
		}

		authenticator := server.NewAuthenticator(
			a.users,
			a.cfg.Auth.Required,
			time.Duration(a.cfg.Auth.HandshakeTimeoutSeconds)*time.Second,
			a.recorder,
			a.log,
		)
		tcpServer := server.NewTCPServer(
			fmt.Sprintf(":%d", a.cfg.ProtocolPort),
			authenticator,
			responder,
			a.log,
			server.WithAuditRecorder(a.recorder),
		)
		httpServer := server.NewHTTPServer(a.cfg.ServerPort, a.users, a.recorder)

		// Periodic sweep of sessions past their token expiry.
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := a.users.CleanupExpiredSessions(ctx); err != nil {
						a.log.Warn().Err(err).Msg("session sweep failed")
					} else if n > 0 {
						a.log.Info().Int64("deleted", n).Msg("swept expired sessions")
					}
				}
			}
		}()

		errs := make(chan error, 2)
		go func() { errs <- tcpServer.Run(ctx) }()
		go func() {
			err := httpServer.Start()
			if err == http.ErrServerClosed {
				err = nil
			}
			errs <- err
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()

		for i := 0; i < 2; i++ {
			if err := <-errs; err != nil {
				fmt.Fprintf(os.Stderr, "server error: %v\n", err)
				stop()
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
