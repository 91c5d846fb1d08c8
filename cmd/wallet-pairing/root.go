package main

import (
	"github.com/spf13/cobra"
	"moff.io/wallet-pairing/internal/config"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "wallet-pairing",
	Short: "Pair with a wallet over WalletConnect and send it signing requests",
	Long: `wallet-pairing shows a pairing QR code, keeps track of the approved
wallet session and forwards signing and transaction requests to the wallet.

Example:
  wallet-pairing serve --config-path config.yml
  wallet-pairing pair --sign "Hello World!"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.DefaultPath, "The path to the configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Env files loaded before the environment overrides")
	rootCmd.AddCommand(serveCmd, pairCmd)
}
