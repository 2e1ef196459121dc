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

package dbb

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Reply is a decoded application reply: a JSON object whose members are kept
// raw until the caller asks for them.
type Reply map[string]json.RawMessage

// replyTrim is stripped from the end of every reply before decoding
const replyTrim = " \t\r\n\x00"

// ParseReply decodes a reply, ignoring trailing whitespace and NUL bytes.
func ParseReply(raw []byte) (Reply, error) {
	trimmed := bytes.TrimRight(raw, replyTrim)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidReply)
	}

	var reply Reply
	if err := json.Unmarshal(trimmed, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidReply)
	}
	return reply, nil
}

// Has reports whether the reply carries member key
func (r Reply) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Decode unmarshals member key into v
func (r Reply) Decode(key string, v any) error {
	raw, ok := r[key]
	if !ok {
		return fmt.Errorf("%w: no %q member", ErrInvalidReply, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: member %q: %v", ErrInvalidReply, key, err)
	}
	return nil
}

// Text returns member key when it is a JSON string
func (r Reply) Text(key string) (string, bool) {
	var s string
	if err := r.Decode(key, &s); err != nil {
		return "", false
	}
	return s, true
}

// Ciphertext returns the base64 envelope carried in the "ciphertext" member.
// ok is false when the member is absent.
func (r Reply) Ciphertext() (ciphertext string, ok bool, err error) {
	if !r.Has("ciphertext") {
		return "", false, nil
	}
	if err := r.Decode("ciphertext", &ciphertext); err != nil {
		return "", true, err
	}
	return ciphertext, true, nil
}

// Err returns *DeviceError when the reply carries an "error" member.
func (r Reply) Err() error {
	raw, ok := r["error"]
	if !ok {
		return nil
	}

	var detail struct {
		Message string `json:"message"`
		Command string `json:"command"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		return &DeviceError{Code: detail.Code, Message: detail.Message, Command: detail.Command}
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &DeviceError{Message: msg}
	}
	return &DeviceError{Message: string(raw)}
}

// Bytes re-encodes the reply as compact JSON
func (r Reply) Bytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}
