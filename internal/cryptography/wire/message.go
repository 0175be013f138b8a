// Package wire implements the DES-CBC+3DES-ECB hybrid framing the card
// server protocol uses for every message after the login key exchange:
// key parity adjustment and 14→16 byte spreading (spread.go), and the
// encrypt/decrypt pair defined here. It is grounded on the teacher's
// infrastructure/cryptography/primitives package, which keeps cryptographic
// building blocks in their own narrow package away from the session and
// transport layers.
package wire

import (
	"crypto/cipher"
	"crypto/des" //nolint:staticcheck // the wire protocol mandates legacy DES; no ecosystem replacement exists for this format
	"errors"
	"fmt"
)

// ErrFrameTooLarge is returned when a padded, checksummed, IV-appended
// frame would exceed the 240-byte wire limit.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ErrInvalidFrameLength is returned by Decrypt when the input length is not
// congruent with the fixed 8-byte DES block size plus the trailing IV.
var ErrInvalidFrameLength = errors.New("wire: invalid encrypted frame length")

// ErrChecksumMismatch is returned by Decrypt when the XOR checksum over the
// recovered plaintext does not verify to zero.
var ErrChecksumMismatch = errors.New("wire: checksum mismatch")

const (
	headerOffset = 2
	ivSize       = 8
	blockSize    = des.BlockSize // 8
)

// Codec performs the wire protocol's message encryption and decryption.
// A Codec is stateless apart from its RandomSource and is safe to reuse
// across keys; callers typically keep one per server session.
type Codec struct {
	rand RandomSource
}

// NewCodec returns a Codec using the default crypto/rand-backed random
// source.
func NewCodec() *Codec {
	return &Codec{rand: NewRandomSource()}
}

// NewCodecWithRandom returns a Codec using the given RandomSource,
// primarily so tests can supply deterministic padding/IV bytes.
func NewCodecWithRandom(r RandomSource) *Codec {
	return &Codec{rand: r}
}

// Encrypt encrypts buf[headerOffset:payloadLen] in place, appending random
// padding, a one-byte XOR checksum, and a fresh random IV, then running the
// DES-CBC+3DES-ECB hybrid over each 8-byte block. buf must have spare
// capacity for the padding, checksum, and IV bytes (callers typically
// allocate a settings.MaxFrameSize buffer). It returns the total frame
// length including the 2-byte header; bytes buf[0:2] are NOT written by
// Encrypt (the caller stamps the big-endian (length-2) header once the
// final length is known, matching send_msg in the source protocol, which
// stamps seq/sid before encrypting and the length after).
func (c *Codec) Encrypt(buf []byte, payloadLen int, key [16]byte) (int, error) {
	pad := (8 - ((payloadLen - 1) % 8)) % 8
	if payloadLen+pad+1+ivSize > cap(buf) {
		return 0, ErrFrameTooLarge
	}
	if payloadLen+pad+1+ivSize > 240 {
		return 0, ErrFrameTooLarge
	}
	buf = buf[:payloadLen+pad+1+ivSize]

	if pad > 0 {
		if err := c.rand.FillRandom(buf[payloadLen : payloadLen+pad]); err != nil {
			return 0, fmt.Errorf("wire: generate padding: %w", err)
		}
	}
	length := payloadLen + pad

	var checksum byte
	for i := headerOffset; i < length; i++ {
		checksum ^= buf[i]
	}
	buf[length] = checksum
	length++

	iv := buf[length : length+ivSize]
	if err := c.rand.FillRandom(iv); err != nil {
		return 0, fmt.Errorf("wire: generate iv: %w", err)
	}
	length += ivSize

	cbcEnc, ecbDec, ecbEnc, err := blockCiphers(key)
	if err != nil {
		return 0, err
	}

	var ivec [ivSize]byte
	copy(ivec[:], iv)

	for i := headerOffset; i < length-ivSize; i += blockSize {
		block := buf[i : i+blockSize]
		cbcEncryptBlock(cbcEnc, ivec[:], block)
		ecbDec.Decrypt(block, block)
		ecbEnc.Encrypt(block, block)
		copy(ivec[:], block)
	}

	return length, nil
}

// Decrypt reverses Encrypt in place over buf[headerOffset:length], where
// length is the total frame length including the 2-byte header and
// trailing 8-byte IV. It returns the decrypted length with the header
// included and the IV excluded; the padding and checksum byte remain part
// of that length, as in the source protocol's des_decrypt, and callers
// find the end of the payload through the decoded opcode's own length
// field.
func (c *Codec) Decrypt(buf []byte, length int, key [16]byte) (int, error) {
	if (length-headerOffset)%blockSize != 0 || length-headerOffset < 16 {
		return 0, ErrInvalidFrameLength
	}

	length -= ivSize
	var nextIVec [ivSize]byte
	copy(nextIVec[:], buf[length:length+ivSize])

	cbcDec, ecbKey8, ecbKey0, err := blockCiphers(key)
	if err != nil {
		return 0, err
	}

	var ivec [ivSize]byte
	for i := headerOffset; i < length; i += blockSize {
		ivec = nextIVec
		copy(nextIVec[:], buf[i:i+blockSize])

		block := buf[i : i+blockSize]
		ecbKey0.Decrypt(block, block)
		ecbKey8.Encrypt(block, block)
		cbcDecryptBlock(cbcDec, ivec[:], block)
	}

	var checksum byte
	for i := headerOffset; i < length; i++ {
		checksum ^= buf[i]
	}
	if checksum != 0 {
		return 0, ErrChecksumMismatch
	}
	return length, nil
}

// blockCiphers builds the three DES ciphers Encrypt/Decrypt need from a
// 16-byte session key: cbcKey0 (CBC over key[0:8]), ecbKey8 (ECB over
// key[8:16]), ecbKey0 (ECB over key[0:8]) — in the order the hybrid scheme
// applies them.
func blockCiphers(key [16]byte) (cbcKey0, ecbKey8, ecbKey0 cipher.Block, err error) {
	cbcKey0, err = des.NewCipher(key[0:8])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wire: build cbc cipher: %w", err)
	}
	ecbKey8, err = des.NewCipher(key[8:16])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wire: build ecb cipher (key[8:16]): %w", err)
	}
	ecbKey0, err = des.NewCipher(key[0:8])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wire: build ecb cipher (key[0:8]): %w", err)
	}
	return cbcKey0, ecbKey8, ecbKey0, nil
}

// cbcEncryptBlock performs a single-block DES-CBC encryption: block ^= iv,
// then DES-encrypt block in place. crypto/cipher has no single-block CBC
// primitive, so this reproduces exactly the one block the hybrid scheme
// needs.
func cbcEncryptBlock(block cipher.Block, iv, data []byte) {
	for i := 0; i < blockSize; i++ {
		data[i] ^= iv[i]
	}
	block.Encrypt(data, data)
}

// cbcDecryptBlock reverses cbcEncryptBlock: DES-decrypt in place, then
// block ^= iv.
func cbcDecryptBlock(block cipher.Block, iv, data []byte) {
	block.Decrypt(data, data)
	for i := 0; i < blockSize; i++ {
		data[i] ^= iv[i]
	}
}
