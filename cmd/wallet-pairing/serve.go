package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"moff.io/wallet-pairing/internal/http"
	"moff.io/wallet-pairing/internal/starter"
	"moff.io/wallet-pairing/pkg/log"
)

var serveTerminalQR bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pairing buttons over http",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var terminal io.Writer
		if serveTerminalQR {
			terminal = os.Stdout
		}
		a, err := newApp(ctx, terminal)
		if err != nil {
			return err
		}
		defer a.close()

		opts := http.Options{
			Addr:               a.cfg.HTTP.Addr,
			Namespace:          a.cfg.WalletConnect.Namespace,
			ChainID:            a.cfg.WalletConnect.ChainID,
			TestAccount:        a.cfg.WalletConnect.TestAccount,
			RateLimitPerMinute: a.cfg.HTTP.RateLimitPerMinute,
			QR:                 a.qr,
		}
		if a.limiter != nil {
			opts.Limiter = a.limiter
		}
		if a.events != nil {
			opts.Events = a.events
		}
		server := http.NewServer(a.manager, opts)
		starter.Start(ctx, server)
		<-ctx.Done()
		log.Info("shutting down")
		starter.Stop(server)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveTerminalQR, "terminal-qr", false, "Also print pairing codes on stdout")
}
