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

// Package frame implements the INIT/CONT report framing used to carry one
// logical message over fixed-size USB HID reports.
package frame

// Report layout constants
const (
	ReportSize = 64   // Default HID report size in bytes
	ReportID   = 0x00 // Leading report ID byte written before every report
	Filler     = 0xEE // Padding byte filling a frame up to the report size

	InitHeaderSize = 7 // cid(4) + cmd(1) + length(2)
	ContHeaderSize = 5 // cid(4) + seq(1)
)

// Channel and command constants
const (
	// ChannelID is the fixed channel used by the host for every exchange
	ChannelID uint32 = 0xFF000000

	TypeInit   byte = 0x80 // Set on the command byte of INIT frames
	typeVendor byte = 0x40

	// Command is the application command code (0x80 + 0x40 + 0x01)
	Command = TypeInit | typeVendor | 0x01

	// ErrorCommand marks a HID-level error response from the device
	ErrorCommand = TypeInit | 0x3F

	// MaxSequence is the highest CONT sequence number; bit 7 is reserved for TypeInit
	MaxSequence = 0x7F
)

// HID-level error codes carried in the first payload byte of an error frame
const (
	ErrCodeInvalidCmd   byte = 0x01
	ErrCodeInvalidPar   byte = 0x02
	ErrCodeInvalidLen   byte = 0x03
	ErrCodeInvalidSeq   byte = 0x04
	ErrCodeMsgTimeout   byte = 0x05
	ErrCodeChannelBusy  byte = 0x06
	ErrCodeLockRequired byte = 0x0A
	ErrCodeInvalidCID   byte = 0x0B
	ErrCodeOther        byte = 0x7F
)

// MaxPayload returns the largest logical message that can be encoded for the
// given report size without overflowing the 7-bit CONT sequence space.
func MaxPayload(reportSize int) int {
	if reportSize <= InitHeaderSize {
		return 0
	}
	n := (reportSize - InitHeaderSize) + (MaxSequence+1)*(reportSize-ContHeaderSize)
	if n > 0xFFFF {
		n = 0xFFFF
	}
	return n
}
