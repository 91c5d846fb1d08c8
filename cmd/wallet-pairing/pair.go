package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"moff.io/wallet-pairing/internal/chains"
	"moff.io/wallet-pairing/internal/requests"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

var (
	pairSign    string
	pairVerify  bool
	pairTimeout time.Duration
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with a wallet from the terminal",
	Long: `pair prints a pairing QR code, waits for the wallet to approve and
keeps the session until interrupted. With --sign the wallet is asked for a
personal_sign right after approval.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer a.close()

		connectCtx := ctx
		if pairTimeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, pairTimeout)
			defer cancel()
		}
		required := requests.DefaultNamespaces(a.cfg.WalletConnect.Namespace, a.cfg.WalletConnect.ChainID)
		if err := a.manager.Connect(connectCtx, required); err != nil {
			return err
		}
		st := a.manager.State()
		fmt.Fprintf(cmd.OutOrStdout(), "Connected %v on %v\n", st.Account, chains.Describe(st.ChainID))

		if pairSign != "" {
			if err := personalSign(ctx, a.manager, st.Account, pairSign, pairVerify, cmd.OutOrStdout()); err != nil {
				return err
			}
		}

		log.Info("session kept open, interrupt to disconnect")
		if !waitWhileConnected(ctx, a.manager, time.Second) {
			fmt.Fprintln(cmd.OutOrStdout(), "Wallet closed the session")
			return nil
		}
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.manager.Disconnect(disconnectCtx)
	},
}

var errWalletDisconnected = errors.New("wallet disconnected")

type signer interface {
	RequestSignature(ctx context.Context, p session.Payload) (json.RawMessage, error)
}

// personalSign asks the wallet to sign msg and prints the signature, checked
// against account when verify is set.
func personalSign(ctx context.Context, s signer, account, msg string, verify bool, out io.Writer) error {
	sig, err := s.RequestSignature(ctx, requests.PersonalSign(msg))
	if err != nil {
		return err
	}
	if sig == nil {
		return errWalletDisconnected
	}
	fmt.Fprintf(out, "Signature %s\n", sig)
	if !verify {
		return nil
	}
	var hex string
	if err := json.Unmarshal(sig, &hex); err != nil {
		return errors.Wrap(err, "decode signature")
	}
	fmt.Fprintf(out, "Signature valid: %v\n", requests.VerifyPersonalSign(account, hex, []byte(msg)))
	return nil
}

type stateSource interface {
	State() session.State
}

// waitWhileConnected blocks until ctx is done, true, or the session is
// gone, false.
func waitWhileConnected(ctx context.Context, src stateSource, every time.Duration) bool {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if src.State().Status == session.Disconnected {
				return false
			}
		}
	}
}

func init() {
	pairCmd.Flags().StringVar(&pairSign, "sign", "", "Message to personal_sign once connected")
	pairCmd.Flags().BoolVar(&pairVerify, "verify", true, "Verify the personal_sign signature against the account")
	pairCmd.Flags().DurationVar(&pairTimeout, "timeout", 0, "Give up waiting for approval after this long, 0 waits forever")
}
