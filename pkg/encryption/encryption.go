package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	ivLength  = 12 // 96-bit IV as recommended for GCM
	tagLength = 16
)

var ErrDecrypt = errors.New("decryption failed")

// Encrypted is a ciphertext envelope; all fields are hex-encoded.
type Encrypted struct {
	Ciphertext string
	IV         string
	Tag        string
}

// Service encrypts and decrypts with AES-256-GCM under a single master key.
// The key is the SHA-256 digest of the configured secret so any secret length
// yields a valid 32-byte key.
type Service struct {
	key []byte
	aad []byte
}

func New(masterSecret string) (*Service, error) {
	if masterSecret == "" {
		return nil, errors.New("encryption master key is not set")
	}
	digest := sha256.Sum256([]byte(masterSecret))
	return &Service{key: digest[:], aad: []byte("taxly-vault")}, nil
}

func (s *Service) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Service) Encrypt(plaintext []byte) (*Encrypted, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, s.aad)
	ct, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]
	return &Encrypted{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		Tag:        hex.EncodeToString(tag),
	}, nil
}

func (s *Service) Decrypt(enc *Encrypted) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	ct, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	iv, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, ErrDecrypt
	}
	tag, err := hex.DecodeString(enc.Tag)
	if err != nil {
		return nil, ErrDecrypt
	}
	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), s.aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
