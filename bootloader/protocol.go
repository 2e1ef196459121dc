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

package bootloader

import (
	"bytes"
	"fmt"
	"strings"
)

// Bootloader wire constants
const (
	// SendBufferSize is the fixed size of every bootloader request
	SendBufferSize = 4098
	// ReplySize is the number of reply bytes read after every request
	ReplySize = 256
	// ChunkSize is the firmware block size carried by one write request
	ChunkSize = 8 * 512
	// ReportSize is the physical report size used by the current strategy
	ReportSize = 64
	// AppFlashSize is the application flash region (flash size minus bootloader)
	AppFlashSize = 225280

	// OpWrite is the chunk write opcode ('w')
	OpWrite byte = 0x77
	// IndexModulus bounds the one byte chunk index
	IndexModulus = 0xFF
	// StatusOK is the status character of a successful reply
	StatusOK = '0'

	chunkHeaderSize = 2
	reportID        = 0x00
)

// Reply is a parsed bootloader reply: a two character status code followed
// by free text.
type Reply struct {
	Code    string
	Message string
}

// ParseReply trims trailing whitespace and NUL bytes and splits the status
// code from the message.
func ParseReply(raw []byte) Reply {
	text := string(bytes.TrimRight(raw, " \t\r\n\x00"))
	if len(text) <= 2 {
		return Reply{Code: text}
	}
	return Reply{Code: text[:2], Message: text[2:]}
}

// OK reports whether the status character signals success.
func (r Reply) OK() bool {
	return len(r.Code) == 2 && r.Code[1] == StatusOK
}

// Op returns the echoed opcode character, or 0 for an empty reply.
func (r Reply) Op() byte {
	if r.Code == "" {
		return 0
	}
	return r.Code[0]
}

func (r Reply) String() string {
	if r.Message == "" {
		return r.Code
	}
	return r.Code + " " + strings.TrimSpace(r.Message)
}

// Chunk is one firmware block ready to be sent to the bootloader.
type Chunk struct {
	Data []byte
	// Seq is the zero based position of the chunk in the image
	Seq int
}

// Index returns the on-wire chunk index (Seq mod 255).
func (c Chunk) Index() byte {
	return byte(c.Seq % IndexModulus)
}

// Encode returns opcode || index || data.
func (c Chunk) Encode() []byte {
	msg := make([]byte, chunkHeaderSize+len(c.Data))
	msg[0] = OpWrite
	msg[1] = c.Index()
	copy(msg[chunkHeaderSize:], c.Data)
	return msg
}

// padSendBuffer zero pads msg to the fixed request size.
func padSendBuffer(msg []byte) ([]byte, error) {
	if len(msg) > SendBufferSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(msg), SendBufferSize)
	}
	buf := make([]byte, SendBufferSize)
	copy(buf, msg)
	return buf, nil
}
