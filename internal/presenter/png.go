package presenter

import (
	"context"
	"io/ioutil"
	"os"
	"sync"

	"github.com/skip2/go-qrcode"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

const defaultPNGSize = 256

// PNGFile keeps the QR code of the current uri as a PNG, in memory and,
// when path is set, on disk.
type PNGFile struct {
	path string
	size int

	mu  sync.RWMutex
	uri string
	png []byte
}

func NewPNGFile(path string, size int) *PNGFile {
	if size <= 0 {
		size = defaultPNGSize
	}
	return &PNGFile{path: path, size: size}
}

func (p *PNGFile) Show(_ context.Context, uri string) error {
	png, err := qrcode.Encode(uri, qrcode.Medium, p.size)
	if err != nil {
		return errors.Wrap(err, "encode pairing qr code")
	}
	if p.path != "" {
		if err := ioutil.WriteFile(p.path, png, 0o644); err != nil {
			return errors.WrapAndReport(err, "write pairing qr code")
		}
		log.Infof("pairing qr code written to %v", p.path)
	}
	p.mu.Lock()
	p.uri, p.png = uri, png
	p.mu.Unlock()
	return nil
}

func (p *PNGFile) Dismiss(context.Context) error {
	p.mu.Lock()
	p.uri, p.png = "", nil
	p.mu.Unlock()
	if p.path == "" {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove pairing qr code")
	}
	return nil
}

// Current returns the PNG and uri being shown, nil when nothing is.
func (p *PNGFile) Current() ([]byte, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.png == nil {
		return nil, ""
	}
	return append([]byte(nil), p.png...), p.uri
}
