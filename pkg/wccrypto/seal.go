package wccrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"moff.io/wallet-pairing/pkg/errors"
)

const (
	// KeySize is the symmetric key length shared through the pairing URI.
	KeySize = 256 / 8
	ivSize  = aes.BlockSize
)

var (
	ErrBadMAC     = errors.New("inconsistent payload hmac")
	ErrBadPadding = errors.New("invalid payload padding")
)

// Payload is an AES-256-CBC ciphertext with its IV and HMAC-SHA256 tag, hex encoded.
type Payload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

// Seal encrypts plaintext with key under a fresh IV and authenticates data||iv.
func Seal(plaintext, key []byte) (*Payload, error) {
	iv, err := GenerateRandomBytes(ivSize)
	if err != nil {
		return nil, errors.Wrap(err, "generate iv")
	}
	data, err := Aes256Encrypt(plaintext, key, iv)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(HmacSha256(append(append([]byte{}, data...), iv...), key)),
	}, nil
}

// Open verifies and decrypts p.
func Open(p *Payload, key []byte) ([]byte, error) {
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, errors.Wrap(err, "decode iv hex")
	}
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cipher hex")
	}
	mac, err := hex.DecodeString(p.Hmac)
	if err != nil {
		return nil, errors.Wrap(err, "decode hmac hex")
	}
	if !hmac.Equal(mac, HmacSha256(append(append([]byte{}, data...), iv...), key)) {
		return nil, ErrBadMAC
	}
	return Aes256Decrypt(data, key, iv)
}

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher block")
	}
	plaintext := pkcs7Pad(content, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher block")
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	plaintext := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, cipherText)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, ErrBadPadding
	}
	padding := int(data[n-1])
	if padding == 0 || padding > blockSize || padding > n {
		return nil, ErrBadPadding
	}
	for _, b := range data[n-padding:] {
		if int(b) != padding {
			return nil, ErrBadPadding
		}
	}
	return data[:n-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
