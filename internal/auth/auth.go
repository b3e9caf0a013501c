// Package auth provides challenge-signing primitives for enrollment.
//
// It intentionally avoids transport and storage concerns.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// EnvPrivateKey names the environment variable holding the PEM-encoded
// RSA private key used to sign enrollment challenges.
const EnvPrivateKey = "PRIVATE_KEY"

var (
	ErrNoPrivateKey      = errors.New("auth: private key not set in environment")
	ErrInvalidPrivateKey = errors.New("auth: invalid private key")
)

// Signer signs server-issued challenge bytes.
type Signer interface {
	Sign(challenge []byte) ([]byte, error)
}

// SignerFunc adapts a function into a Signer.
type SignerFunc func(challenge []byte) ([]byte, error)

func (f SignerFunc) Sign(challenge []byte) ([]byte, error) {
	return f(challenge)
}

// RSASigner signs challenges with RSA PKCS#1 v1.5 over SHA-256.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner parses a PEM-encoded private key in PKCS#1 or PKCS#8
// form.
func NewRSASigner(pemData []byte) (*RSASigner, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPrivateKey)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSASigner{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
	}
	return &RSASigner{key: key}, nil
}

// SignerOf wraps an already parsed key.
func SignerOf(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

// SignerFromEnv loads the signing key from EnvPrivateKey. Absence is an
// error; enrollment must not proceed without the key.
func SignerFromEnv() (*RSASigner, error) {
	pemData := os.Getenv(EnvPrivateKey)
	if pemData == "" {
		return nil, ErrNoPrivateKey
	}
	return NewRSASigner([]byte(pemData))
}

func (s *RSASigner) Sign(challenge []byte) ([]byte, error) {
	digest := sha256.Sum256(challenge)
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}

// Public exposes the public half, mainly for signature verification in
// tests.
func (s *RSASigner) Public() *rsa.PublicKey {
	return &s.key.PublicKey
}
