package wire

import (
	"crypto/rand"
	"io"
)

// RandomSource fills buffers with cryptographically random bytes. Each
// Codec owns its own instance rather than sharing a single generator,
// mirroring the teacher's per-connection nonce generators in
// infrastructure/cryptography/chacha20/nonce.go; this does not strengthen
// the legacy protocol itself, only removes a shared non-reentrant rand()
// source (see design notes on randomness).
type RandomSource interface {
	FillRandom(buf []byte) error
}

type cryptoRandSource struct{}

// NewRandomSource returns the default RandomSource backed by crypto/rand.
func NewRandomSource() RandomSource {
	return cryptoRandSource{}
}

func (cryptoRandSource) FillRandom(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return err
}
