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
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/internal/frame"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithTimeout sets the read timeout of the transport
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithReportSize overrides the HID report size used for framing
func WithReportSize(size int) Option {
	return func(d *Device) error {
		if size <= frame.InitHeaderSize {
			return fmt.Errorf("%w: report size %d", ErrInvalidParameter, size)
		}
		d.config.ReportSize = size
		return nil
	}
}

// WithMaxMessageSize lowers the largest reply the Device accepts. Replies
// declaring a longer length fail with ErrLengthOverrun before any payload is
// buffered.
func WithMaxMessageSize(size int) Option {
	return func(d *Device) error {
		if size <= 0 {
			return fmt.Errorf("%w: max message size %d", ErrInvalidParameter, size)
		}
		d.config.MaxMessageSize = size
		return nil
	}
}

// WithSecret derives the session keys from the device password
func WithSecret(secret []byte) Option {
	return func(d *Device) error {
		d.SetSecret(secret)
		return nil
	}
}

// WithBootStrategy forces a bootloader send strategy instead of deriving it
// from the serial number
func WithBootStrategy(strategy bootloader.Strategy) Option {
	return func(d *Device) error {
		d.config.BootStrategy = &strategy
		return nil
	}
}

// WithRandom sets the source of initialization vectors
func WithRandom(r io.Reader) Option {
	return func(d *Device) error {
		if r == nil {
			return fmt.Errorf("%w: nil random source", ErrInvalidParameter)
		}
		d.config.Random = r
		return nil
	}
}
