package main

import (
	"os"

	"moff.io/wallet-pairing/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
