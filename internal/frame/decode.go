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

package frame

import (
	"encoding/binary"
	"fmt"
)

// Decoder reassembles one logical message from a stream of reports.
//
// Feed the first report, then keep feeding reports until Feed reports the
// message complete. A Decoder is single use; call Reset to reuse it.
type Decoder struct {
	buf       []byte
	channelID uint32
	maxLength int
	length    int
	command   byte
	seq       byte
	started   bool
	done      bool
}

// NewDecoder creates a decoder expecting frames on channelID carrying cmd.
// Messages declaring more than maxLength bytes are rejected.
func NewDecoder(channelID uint32, cmd byte, maxLength int) *Decoder {
	return &Decoder{
		channelID: channelID,
		command:   cmd,
		maxLength: maxLength,
	}
}

// Feed consumes one report (without report ID byte) and returns true once
// the declared message length has been accumulated.
func (d *Decoder) Feed(report []byte) (bool, error) {
	if d.done {
		return true, fmt.Errorf("%w: report after message complete", ErrMalformedFrame)
	}
	if !d.started {
		return d.feedInit(report)
	}
	return d.feedCont(report)
}

func (d *Decoder) feedInit(report []byte) (bool, error) {
	if len(report) < InitHeaderSize {
		return false, fmt.Errorf("%w: INIT report is %d bytes", ErrMalformedFrame, len(report))
	}

	cid := binary.BigEndian.Uint32(report[0:4])
	if cid != d.channelID {
		return false, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrChannelMismatch, cid, d.channelID)
	}

	cmd := report[4]
	if cmd == ErrorCommand && d.command != ErrorCommand {
		code := ErrCodeOther
		if len(report) > InitHeaderSize {
			code = report[InitHeaderSize]
		}
		return false, &HIDError{Code: code}
	}
	if cmd != d.command {
		return false, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrCommandMismatch, cmd, d.command)
	}

	length := int(binary.BigEndian.Uint16(report[5:7]))
	if d.maxLength > 0 && length > d.maxLength {
		return false, fmt.Errorf("%w: %d bytes (max %d)", ErrLengthOverrun, length, d.maxLength)
	}

	d.started = true
	d.length = length
	d.buf = make([]byte, 0, length)
	d.appendPayload(report[InitHeaderSize:])
	return d.done, nil
}

func (d *Decoder) feedCont(report []byte) (bool, error) {
	if len(report) <= ContHeaderSize {
		return false, fmt.Errorf("%w: CONT report is %d bytes", ErrMalformedFrame, len(report))
	}

	cid := binary.BigEndian.Uint32(report[0:4])
	if cid != d.channelID {
		return false, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrChannelMismatch, cid, d.channelID)
	}

	if seq := report[4]; seq != d.seq {
		return false, fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, seq, d.seq)
	}
	d.seq++

	d.appendPayload(report[ContHeaderSize:])
	return d.done, nil
}

// appendPayload keeps at most the declared length; trailing filler is dropped.
func (d *Decoder) appendPayload(data []byte) {
	if remaining := d.length - len(d.buf); len(data) > remaining {
		data = data[:remaining]
	}
	d.buf = append(d.buf, data...)
	d.done = len(d.buf) >= d.length
}

// Done reports whether the full message has been reassembled.
func (d *Decoder) Done() bool {
	return d.done
}

// Length returns the total length declared by the INIT frame.
func (d *Decoder) Length() int {
	return d.length
}

// Message returns the reassembled message, or nil if it is incomplete.
func (d *Decoder) Message() []byte {
	if !d.done {
		return nil
	}
	return d.buf
}

// Reset prepares the decoder for a new message on the same channel.
func (d *Decoder) Reset() {
	d.buf = nil
	d.length = 0
	d.seq = 0
	d.started = false
	d.done = false
}

// DecodeFrames reassembles a complete message from already-received frames.
func DecodeFrames(channelID uint32, cmd byte, maxLength int, frames [][]byte) ([]byte, error) {
	dec := NewDecoder(channelID, cmd, maxLength)
	for i, frm := range frames {
		done, err := dec.Feed(frm)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if done {
			if i != len(frames)-1 {
				return nil, fmt.Errorf("%w: %d trailing frames", ErrMalformedFrame, len(frames)-1-i)
			}
			return dec.Message(), nil
		}
	}
	return nil, fmt.Errorf("%w: message truncated after %d frames", ErrMalformedFrame, len(frames))
}
