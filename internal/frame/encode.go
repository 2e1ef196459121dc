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

// Encode splits payload into INIT and CONT frames of exactly reportSize
// bytes. The returned frames do not carry the leading report ID byte; see
// Report.
func Encode(channelID uint32, cmd byte, payload []byte, reportSize int) ([][]byte, error) {
	if reportSize <= InitHeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReportSize, reportSize)
	}
	if limit := MaxPayload(reportSize); len(payload) > limit {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(payload), limit)
	}

	frames := make([][]byte, 0, Count(len(payload), reportSize))

	// INIT frame
	head := newFrame(reportSize)
	binary.BigEndian.PutUint32(head[0:4], channelID)
	head[4] = cmd
	binary.BigEndian.PutUint16(head[5:7], uint16(len(payload)&0xFFFF))
	idx := copy(head[InitHeaderSize:], payload)
	frames = append(frames, head)

	// CONT frames
	var seq byte
	for idx < len(payload) {
		cont := newFrame(reportSize)
		binary.BigEndian.PutUint32(cont[0:4], channelID)
		cont[4] = seq
		idx += copy(cont[ContHeaderSize:], payload[idx:])
		frames = append(frames, cont)
		seq++
	}

	return frames, nil
}

// Count returns the number of frames needed to carry n payload bytes.
func Count(n, reportSize int) int {
	first := reportSize - InitHeaderSize
	if n <= first {
		return 1
	}
	per := reportSize - ContHeaderSize
	return 1 + (n-first+per-1)/per
}

// Report prefixes a frame with the HID report ID byte for writing.
func Report(frm []byte) []byte {
	report := make([]byte, 1+len(frm))
	report[0] = ReportID
	copy(report[1:], frm)
	return report
}

func newFrame(reportSize int) []byte {
	frm := make([]byte, reportSize)
	for i := range frm {
		frm[i] = Filler
	}
	return frm
}
