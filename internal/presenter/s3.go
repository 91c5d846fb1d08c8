package presenter

import (
	"context"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

const presignExpire = 10 * time.Minute

// ObjectStore is where S3 uploads pairing codes.
type ObjectStore interface {
	PutFileToS3(ctx context.Context, key, contentType string, content []byte) error
	DeleteFileFromS3(ctx context.Context, key string) error
	GetS3PresignedAccessURL(ctx context.Context, key string, expire time.Duration) (string, error)
}

// S3 uploads the QR code and logs a presigned link to it.
type S3 struct {
	store ObjectStore
	key   string

	mu  sync.Mutex
	url string
}

func NewS3(store ObjectStore, key string) *S3 {
	if key == "" {
		key = "wallet-pairing/qr.png"
	}
	return &S3{store: store, key: key}
}

func (s *S3) Show(ctx context.Context, uri string) error {
	png, err := qrcode.Encode(uri, qrcode.Medium, defaultPNGSize)
	if err != nil {
		return errors.Wrap(err, "encode pairing qr code")
	}
	if err := s.store.PutFileToS3(ctx, s.key, "image/png", png); err != nil {
		return err
	}
	url, err := s.store.GetS3PresignedAccessURL(ctx, s.key, presignExpire)
	if err != nil {
		return err
	}
	log.Infof("pairing qr code available at %v", url)
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

func (s *S3) Dismiss(ctx context.Context) error {
	s.mu.Lock()
	shown := s.url != ""
	s.url = ""
	s.mu.Unlock()
	if !shown {
		return nil
	}
	return s.store.DeleteFileFromS3(ctx, s.key)
}

// URL is the presigned link of the code being shown.
func (s *S3) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}
