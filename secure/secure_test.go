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

package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeys_Deterministic(t *testing.T) {
	t.Parallel()

	secrets := [][]byte{[]byte("test"), []byte(""), []byte("correct horse battery staple"), {0x00, 0xFF}}
	for _, secret := range secrets {
		a := DeriveKeys(secret)
		b := DeriveKeys(secret)
		assert.Equal(t, a.Encryption, b.Encryption)
		assert.Equal(t, a.Auth, b.Auth)
		assert.NotEqual(t, a.Encryption, a.Auth)

		first := sha256.Sum256(secret)
		second := sha256.Sum256(first[:])
		h := sha512.Sum512(second[:])
		assert.Equal(t, h[:32], a.Encryption[:])
		assert.Equal(t, h[32:], a.Auth[:])
	}
}

func TestDeriveKeys_DistinctSecrets(t *testing.T) {
	t.Parallel()

	a := DeriveKeys([]byte("test"))
	b := DeriveKeys([]byte("Test"))
	assert.NotEqual(t, a.Encryption, b.Encryption)
	assert.NotEqual(t, a.Auth, b.Auth)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("round trip"))
	for n := 0; n <= 100; n++ {
		payload := bytes.Repeat([]byte{byte(n)}, n)

		env, err := Seal(rand.Reader, payload, keys)
		require.NoError(t, err)
		assert.Equal(t, 0, len(env.Ciphertext())%16)
		assert.Greater(t, len(env.Ciphertext()), n)

		got, err := Open(env, keys)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestSealOpen_PingScenario(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("test"))
	assert.Len(t, keys.Encryption, 32)
	assert.Len(t, keys.Auth, 32)

	payload := []byte(`{"ping":true}`)
	wire, err := SealString(rand.Reader, payload, keys)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(wire)
	require.NoError(t, err)
	require.Len(t, raw, IVSize+16+MACSize)

	env := Envelope(raw)
	assert.Len(t, env.IV(), IVSize)
	assert.Len(t, env.Ciphertext(), 16)
	assert.Len(t, env.MAC(), MACSize)

	got, err := OpenString(wire, DeriveKeys([]byte("test")))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSeal_FreshIV(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("iv"))
	a, err := Seal(rand.Reader, []byte("same"), keys)
	require.NoError(t, err)
	b, err := Seal(rand.Reader, []byte("same"), keys)
	require.NoError(t, err)
	assert.NotEqual(t, a.IV(), b.IV())
	assert.NotEqual(t, a.Ciphertext(), b.Ciphertext())
}

func TestOpen_TamperDetection(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("test"))
	env, err := Seal(rand.Reader, []byte(`{"ping":true}`), keys)
	require.NoError(t, err)

	for bit := 0; bit < len(env)*8; bit++ {
		tampered := append(Envelope(nil), env...)
		tampered[bit/8] ^= 1 << (bit % 8)

		got, openErr := Open(tampered, keys)
		require.ErrorIs(t, openErr, ErrHMACMismatch, "bit %d", bit)
		assert.Nil(t, got)
	}
}

func TestOpen_WrongKeys(t *testing.T) {
	t.Parallel()

	env, err := Seal(rand.Reader, []byte("secret"), DeriveKeys([]byte("a")))
	require.NoError(t, err)

	_, err = Open(env, DeriveKeys([]byte("b")))
	require.ErrorIs(t, err, ErrHMACMismatch)
}

func TestOpen_Malformed(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("test"))

	_, err := Open(make(Envelope, MinEnvelopeSize-1), keys)
	require.ErrorIs(t, err, ErrEnvelopeTooShort)

	// Valid MAC over a ciphertext that is not block aligned
	body := make([]byte, IVSize+17)
	env := Envelope(append(body, mac(keys, body)...))
	_, err = Open(env, keys)
	require.ErrorIs(t, err, ErrMalformedEnvelope)

	// Valid MAC over a block whose padding is invalid
	block, err := aes.NewCipher(keys.Encryption[:])
	require.NoError(t, err)
	body = make([]byte, IVSize+16)
	cipher.NewCBCEncrypter(block, body[:IVSize]).CryptBlocks(body[IVSize:], bytes.Repeat([]byte{'a'}, 16))
	env = Envelope(append(body, mac(keys, body)...))
	_, err = Open(env, keys)
	require.ErrorIs(t, err, ErrBadPadding)

	_, err = OpenString("not base64!", keys)
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestKeys_Destroy(t *testing.T) {
	t.Parallel()

	keys := DeriveKeys([]byte("test"))
	env, err := Seal(rand.Reader, []byte("x"), keys)
	require.NoError(t, err)

	keys.Destroy()
	assert.True(t, keys.Destroyed())
	assert.Equal(t, [KeySize]byte{}, keys.Encryption)
	assert.Equal(t, [KeySize]byte{}, keys.Auth)

	_, err = Seal(rand.Reader, []byte("x"), keys)
	require.ErrorIs(t, err, ErrKeysDestroyed)
	_, err = Open(env, keys)
	require.ErrorIs(t, err, ErrKeysDestroyed)

	var nilKeys *Keys
	nilKeys.Destroy()
	assert.True(t, nilKeys.Destroyed())
}

func TestSeal_ShortRandom(t *testing.T) {
	t.Parallel()

	_, err := Seal(bytes.NewReader([]byte{1, 2, 3}), []byte("x"), DeriveKeys([]byte("test")))
	require.Error(t, err)
}

func TestPadding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "full block of padding", data: bytes.Repeat([]byte{16}, 16)},
		{name: "single pad byte", data: append(bytes.Repeat([]byte{'a'}, 15), 1)},
		{name: "zero pad byte", data: append(bytes.Repeat([]byte{'a'}, 15), 0), wantErr: true},
		{name: "pad byte too large", data: append(bytes.Repeat([]byte{'a'}, 15), 17), wantErr: true},
		{name: "inconsistent padding", data: append(bytes.Repeat([]byte{'a'}, 14), 3, 2), wantErr: true},
		{name: "empty", data: nil, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := unpad(tt.data, 16)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadPadding)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.Len(t, pad(nil, 16), 16)
	assert.Len(t, pad(make([]byte, 16), 16), 32)
}
