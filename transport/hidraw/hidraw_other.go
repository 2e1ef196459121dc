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

//go:build !linux

package hidraw

import (
	dbb "github.com/ZaparooProject/go-dbb"
)

// New is not supported on this platform
func New(path string, _ ...Option) (*Transport, error) {
	return nil, dbb.NewTransportError("open", path, ErrUnsupportedPlatform, dbb.ErrorTypePermanent)
}

// WriteReport is not supported on this platform
func (t *Transport) WriteReport([]byte) error {
	return dbb.NewTransportError("write", t.path, ErrUnsupportedPlatform, dbb.ErrorTypePermanent)
}

// ReadReport is not supported on this platform
func (t *Transport) ReadReport(int) ([]byte, error) {
	return nil, dbb.NewTransportError("read", t.path, ErrUnsupportedPlatform, dbb.ErrorTypePermanent)
}

// SerialNumber is not supported on this platform
func (t *Transport) SerialNumber() (string, error) {
	return "", dbb.NewTransportError("serial number", t.path, ErrUnsupportedPlatform, dbb.ErrorTypePermanent)
}

// Close marks the transport closed
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Info is not supported on this platform
func (t *Transport) Info() (bus uint32, vendor, product uint16, err error) {
	return 0, 0, 0, dbb.NewTransportError("info", t.path, ErrUnsupportedPlatform, dbb.ErrorTypePermanent)
}
