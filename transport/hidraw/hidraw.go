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

// Package hidraw provides a Linux hidraw transport for the wallet.
package hidraw

import (
	"errors"
	"sync"
	"time"

	dbb "github.com/ZaparooProject/go-dbb"
	"github.com/ZaparooProject/go-dbb/internal/sysfs"
)

// ErrUnsupportedPlatform is returned by New outside Linux
var ErrUnsupportedPlatform = errors.New("hidraw is only available on Linux")

const defaultTimeout = 5 * time.Second

// Transport implements the dbb.Transport interface on a hidraw node
type Transport struct {
	path      string
	sysfsRoot string
	serial    string
	timeout   time.Duration
	fd        int
	mu        sync.Mutex
	closed    bool
}

// Option configures a Transport
type Option func(*Transport)

// WithTimeout sets the initial read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.timeout = timeout
	}
}

// WithSysfsRoot overrides the sysfs class directory used for the serial
// number fallback
func WithSysfsRoot(root string) Option {
	return func(t *Transport) {
		t.sysfsRoot = root
	}
}

func newTransport(path string, opts []Option) *Transport {
	t := &Transport{
		path:      path,
		sysfsRoot: sysfs.HIDRawClass,
		timeout:   defaultTimeout,
		fd:        -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the device node path
func (t *Transport) Path() string {
	return t.path
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.fd >= 0
}

// Type returns the transport type
func (*Transport) Type() dbb.TransportType {
	return dbb.TransportHIDRaw
}

var _ dbb.Transport = (*Transport)(nil)
