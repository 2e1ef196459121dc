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

package testing

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/internal/frame"
)

// BuildReplyFrames frames payload the way the device does
func BuildReplyFrames(payload []byte, reportSize int) [][]byte {
	frames, err := frame.Encode(frame.ChannelID, frame.Command, payload, reportSize)
	if err != nil {
		panic(err)
	}
	return frames
}

// BuildErrorFrame builds a HID error frame carrying code
func BuildErrorFrame(code byte, reportSize int) [][]byte {
	frames, err := frame.Encode(frame.ChannelID, frame.ErrorCommand, []byte{code}, reportSize)
	if err != nil {
		panic(err)
	}
	return frames
}

// WithChannel rewrites the channel ID of one frame
func WithChannel(frm []byte, channelID uint32) []byte {
	out := append([]byte(nil), frm...)
	binary.BigEndian.PutUint32(out[0:4], channelID)
	return out
}

// BuildBootReply pads a bootloader status and message to the reply size and
// splits it into reportSize pieces
func BuildBootReply(reply string, reportSize int) [][]byte {
	buf := make([]byte, bootloader.ReplySize)
	copy(buf, reply)

	pieces := make([][]byte, 0, bootloader.ReplySize/reportSize+1)
	for n := 0; n < len(buf); n += reportSize {
		pieces = append(pieces, buf[n:min(n+reportSize, len(buf))])
	}
	return pieces
}
