package presenter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-pairing/pkg/errors"
)

const testURI = "wc:8a5e5bdc-a0e4-4702-ba63-8f1a5655744f@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a"

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestTerminalShowAndDismiss(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	require.NoError(t, term.Dismiss(context.Background()))
	assert.Empty(t, buf.String())

	require.NoError(t, term.Show(context.Background(), testURI))
	out := buf.String()
	assert.Contains(t, out, testURI)
	assert.Contains(t, out, "█")

	buf.Reset()
	require.NoError(t, term.Dismiss(context.Background()))
	assert.Contains(t, buf.String(), "Pairing closed")
}

func TestPNGFileWritesAndRemoves(t *testing.T) {
	t.Setenv("DEBUG", "1")
	path := filepath.Join(t.TempDir(), "qr.png")
	p := NewPNGFile(path, 0)

	png, uri := p.Current()
	assert.Nil(t, png)
	assert.Empty(t, uri)

	require.NoError(t, p.Show(context.Background(), testURI))
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(onDisk, pngMagic))
	png, uri = p.Current()
	assert.Equal(t, onDisk, png)
	assert.Equal(t, testURI, uri)

	require.NoError(t, p.Dismiss(context.Background()))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	png, _ = p.Current()
	assert.Nil(t, png)

	// twice is fine
	require.NoError(t, p.Dismiss(context.Background()))
}

func TestPNGFileInMemory(t *testing.T) {
	p := NewPNGFile("", 128)
	require.NoError(t, p.Show(context.Background(), testURI))
	png, _ := p.Current()
	assert.True(t, bytes.HasPrefix(png, pngMagic))
	require.NoError(t, p.Dismiss(context.Background()))
}

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeStore) PutFileToS3(_ context.Context, key, contentType string, content []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	if contentType != "image/png" {
		return errors.Errorf("content type %v", contentType)
	}
	f.objects[key] = content
	return nil
}

func (f *fakeStore) DeleteFileFromS3(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) GetS3PresignedAccessURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed/" + key, nil
}

func TestS3ShowAndDismiss(t *testing.T) {
	t.Setenv("DEBUG", "1")
	store := &fakeStore{objects: map[string][]byte{}}
	s := NewS3(store, "")

	require.NoError(t, s.Show(context.Background(), testURI))
	assert.Equal(t, "https://signed/wallet-pairing/qr.png", s.URL())
	assert.True(t, bytes.HasPrefix(store.objects["wallet-pairing/qr.png"], pngMagic))

	require.NoError(t, s.Dismiss(context.Background()))
	assert.Empty(t, store.objects)
	assert.Empty(t, s.URL())
}

func TestS3ShowFailure(t *testing.T) {
	boom := errors.New("boom")
	s := NewS3(&fakeStore{objects: map[string][]byte{}, putErr: boom}, "k")
	assert.ErrorIs(t, s.Show(context.Background(), testURI), boom)
	assert.Empty(t, s.URL())
	assert.NoError(t, s.Dismiss(context.Background()))
}

type countingPresenter struct {
	shows, dismisses int
	err              error
}

func (c *countingPresenter) Show(context.Context, string) error {
	c.shows++
	return c.err
}

func (c *countingPresenter) Dismiss(context.Context) error {
	c.dismisses++
	return c.err
}

func TestMultiFansOut(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingPresenter{err: boom}, &countingPresenter{}
	m := Multi{a, b}

	assert.ErrorIs(t, m.Show(context.Background(), testURI), boom)
	assert.ErrorIs(t, m.Dismiss(context.Background()), boom)
	assert.Equal(t, 1, b.shows)
	assert.Equal(t, 1, b.dismisses)
}
