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
	"errors"
	"fmt"
)

// Frame codec errors
var (
	ErrChannelMismatch   = errors.New("channel id mismatch")
	ErrCommandMismatch   = errors.New("command mismatch")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrSequenceMismatch  = errors.New("continuation sequence mismatch")
	ErrLengthOverrun     = errors.New("message length exceeds maximum")
	ErrMessageTooLarge   = errors.New("message too large to encode")
	ErrInvalidReportSize = errors.New("invalid report size")
	ErrDeviceError       = errors.New("device reported HID error")
)

// HIDError is returned when the device answers with an error frame instead
// of the expected command.
type HIDError struct {
	Code byte
}

func (e *HIDError) Error() string {
	return fmt.Sprintf("device reported HID error 0x%02X (%s)", e.Code, ErrorCodeName(e.Code))
}

func (*HIDError) Unwrap() error {
	return ErrDeviceError
}

// ErrorCodeName returns a short name for a HID-level error code.
func ErrorCodeName(code byte) string {
	switch code {
	case ErrCodeInvalidCmd:
		return "invalid command"
	case ErrCodeInvalidPar:
		return "invalid parameter"
	case ErrCodeInvalidLen:
		return "invalid length"
	case ErrCodeInvalidSeq:
		return "invalid sequence"
	case ErrCodeMsgTimeout:
		return "message timeout"
	case ErrCodeChannelBusy:
		return "channel busy"
	case ErrCodeLockRequired:
		return "lock required"
	case ErrCodeInvalidCID:
		return "invalid channel"
	case ErrCodeOther:
		return "other"
	default:
		return "unknown"
	}
}
