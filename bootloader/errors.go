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
	"errors"
	"fmt"
)

// Bootloader errors
var (
	ErrChunkRejected    = errors.New("chunk rejected by bootloader")
	ErrFirmwareTooLarge = errors.New("firmware image exceeds application flash")
	ErrMessageTooLarge  = errors.New("message exceeds bootloader send buffer")
	ErrEmptyReply       = errors.New("empty bootloader reply")
)

// UploadError indicates that the bootloader rejected a chunk. The upload
// cannot be resumed; flash again from the start.
type UploadError struct {
	Code    string
	Message string
	Chunk   int
	Index   byte
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("chunk %d (index %d) rejected with status %q: %s",
		e.Chunk, e.Index, e.Code, e.Message)
}

func (*UploadError) Unwrap() error {
	return ErrChunkRejected
}
