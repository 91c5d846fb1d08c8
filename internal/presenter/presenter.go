// Package presenter shows pairing uris to the user: as a terminal QR code,
// as a PNG served over http or stored in S3.
package presenter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// Terminal renders the uri as a QR code made of half blocks.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	shown bool
}

func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stdout
	}
	return &Terminal{w: w}
}

func (t *Terminal) Show(_ context.Context, uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	qrterminal.GenerateWithConfig(uri, qrterminal.Config{
		Level:          qr.L,
		Writer:         t.w,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	_, err := fmt.Fprintf(t.w, "Scan with your wallet or open:\n%s\n", uri)
	t.shown = true
	return err
}

func (t *Terminal) Dismiss(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shown {
		return nil
	}
	t.shown = false
	_, err := fmt.Fprintln(t.w, "Pairing closed.")
	return err
}

// Presenter mirrors session.Presenter.
type Presenter interface {
	Show(ctx context.Context, uri string) error
	Dismiss(ctx context.Context) error
}

// Multi shows on every presenter. All presenters are tried, the first error is returned.
type Multi []Presenter

func (m Multi) Show(ctx context.Context, uri string) error {
	var first error
	for _, p := range m {
		if err := p.Show(ctx, uri); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Dismiss(ctx context.Context) error {
	var first error
	for _, p := range m {
		if err := p.Dismiss(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
