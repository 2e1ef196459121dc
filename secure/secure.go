// go-dbb
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-dbb.
//
// go-dbb is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-dbb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-dbb; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package secure implements the authenticated encryption envelope used to
// protect application payloads exchanged with the device.
//
// An envelope is iv(16) || AES-256-CBC-PKCS7(payload) || HMAC-SHA256(32),
// where the MAC covers iv || ciphertext and is verified in constant time
// before any decryption is attempted.
package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Envelope sizes
const (
	KeySize = 32
	IVSize  = aes.BlockSize
	MACSize = sha256.Size

	// MinEnvelopeSize is one IV, one cipher block and one MAC
	MinEnvelopeSize = IVSize + aes.BlockSize + MACSize
)

// Secure channel errors
var (
	ErrHMACMismatch      = errors.New("HMAC verification failed")
	ErrEnvelopeTooShort  = errors.New("envelope too short")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrBadPadding        = errors.New("invalid PKCS#7 padding")
	ErrKeysDestroyed     = errors.New("session keys destroyed")
)

// Keys holds the encryption and authentication keys derived from a shared
// secret. Keys must be destroyed once the session ends or any verification
// fails.
type Keys struct {
	Encryption [KeySize]byte
	Auth       [KeySize]byte
	destroyed  bool
}

// DeriveKeys computes SHA512(SHA256(SHA256(secret))) and splits the digest
// into the encryption key (first half) and the authentication key (second
// half).
func DeriveKeys(secret []byte) *Keys {
	first := sha256.Sum256(secret)
	second := sha256.Sum256(first[:])
	h := sha512.Sum512(second[:])

	keys := &Keys{}
	copy(keys.Encryption[:], h[:len(h)/2])
	copy(keys.Auth[:], h[len(h)/2:])

	clear(first[:])
	clear(second[:])
	clear(h[:])
	return keys
}

// Destroy zeroes both keys. A destroyed key set cannot seal or open envelopes.
func (k *Keys) Destroy() {
	if k == nil {
		return
	}
	clear(k.Encryption[:])
	clear(k.Auth[:])
	k.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (k *Keys) Destroyed() bool {
	return k == nil || k.destroyed
}

// Envelope is the raw iv || ciphertext || hmac byte sequence.
type Envelope []byte

// String returns the base64 wire form of the envelope.
func (e Envelope) String() string {
	return base64.StdEncoding.EncodeToString(e)
}

// IV returns the initialization vector, or nil if the envelope is too short.
func (e Envelope) IV() []byte {
	if len(e) < MinEnvelopeSize {
		return nil
	}
	return e[:IVSize]
}

// Ciphertext returns the encrypted payload, or nil if the envelope is too short.
func (e Envelope) Ciphertext() []byte {
	if len(e) < MinEnvelopeSize {
		return nil
	}
	return e[IVSize : len(e)-MACSize]
}

// MAC returns the trailing HMAC, or nil if the envelope is too short.
func (e Envelope) MAC() []byte {
	if len(e) < MinEnvelopeSize {
		return nil
	}
	return e[len(e)-MACSize:]
}

// ParseEnvelope decodes the base64 wire form of an envelope.
func ParseEnvelope(s string) (Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return Envelope(raw), nil
}

// Seal encrypts payload under keys with a fresh IV read from rand and
// appends the HMAC over iv || ciphertext.
func Seal(rand io.Reader, payload []byte, keys *Keys) (Envelope, error) {
	if keys.Destroyed() {
		return nil, ErrKeysDestroyed
	}

	block, err := aes.NewCipher(keys.Encryption[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pad(payload, aes.BlockSize)
	env := make([]byte, IVSize+len(padded), IVSize+len(padded)+MACSize)
	if _, err := io.ReadFull(rand, env[:IVSize]); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, env[:IVSize]).CryptBlocks(env[IVSize:], padded)

	return Envelope(append(env, mac(keys, env)...)), nil
}

// Open verifies the envelope's HMAC and only then decrypts it.
func Open(env Envelope, keys *Keys) ([]byte, error) {
	if keys.Destroyed() {
		return nil, ErrKeysDestroyed
	}
	if len(env) < MinEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooShort, len(env))
	}

	body, claimed := env[:len(env)-MACSize], env[len(env)-MACSize:]
	if !hmac.Equal(claimed, mac(keys, body)) {
		return nil, ErrHMACMismatch
	}

	ciphertext := body[IVSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", ErrMalformedEnvelope, len(ciphertext))
	}

	block, err := aes.NewCipher(keys.Encryption[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, body[:IVSize]).CryptBlocks(plain, ciphertext)
	return unpad(plain, aes.BlockSize)
}

// SealString is Seal followed by base64 encoding.
func SealString(rand io.Reader, payload []byte, keys *Keys) (string, error) {
	env, err := Seal(rand, payload, keys)
	if err != nil {
		return "", err
	}
	return env.String(), nil
}

// OpenString decodes a base64 envelope and opens it.
func OpenString(s string, keys *Keys) ([]byte, error) {
	env, err := ParseEnvelope(s)
	if err != nil {
		return nil, err
	}
	return Open(env, keys)
}

func mac(keys *Keys, data []byte) []byte {
	h := hmac.New(sha256.New, keys.Auth[:])
	_, _ = h.Write(data)
	return h.Sum(nil)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
