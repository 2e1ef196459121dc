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

// Package serial provides a transport for wallets reached through a serial
// bridge (USB CDC-ACM adapters and device simulators).
//
// The bridge carries bare reports: the leading report ID byte is dropped on
// write and every read returns exactly one report of the requested size.
// Ports without USB details (simulators, pseudo terminals) report no serial
// number unless one is given with WithSerialNumber.
package serial

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dbb "github.com/ZaparooProject/go-dbb"
	goserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is used unless WithBaudRate overrides it
	DefaultBaudRate = 115200

	defaultTimeout = 5 * time.Second
)

// Transport implements the dbb.Transport interface over a serial port
type Transport struct {
	port      goserial.Port
	listPorts func() ([]*enumerator.PortDetails, error)
	portName  string
	serial    string
	timeout   time.Duration
	baudRate  int
	mu        sync.Mutex
}

// Option configures a Transport
type Option func(*Transport)

// WithBaudRate sets the line speed
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.baudRate = baud
	}
}

// WithTimeout sets the initial read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.timeout = timeout
	}
}

// WithSerialNumber fixes the serial number instead of looking it up in the
// USB port list
func WithSerialNumber(serial string) Option {
	return func(t *Transport) {
		t.serial = serial
	}
}

func newTransport(portName string, opts []Option) *Transport {
	t := &Transport{
		portName:  portName,
		baudRate:  DefaultBaudRate,
		timeout:   defaultTimeout,
		listPorts: enumerator.GetDetailedPortsList,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// New opens the serial port at portName
func New(portName string, opts ...Option) (*Transport, error) {
	t := newTransport(portName, opts)

	port, err := goserial.Open(portName, &goserial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return nil, dbb.NewTransportError("open", portName, err, openErrorType(err))
	}
	if err := port.SetReadTimeout(t.timeout); err != nil {
		_ = port.Close()
		return nil, dbb.NewTransportError("open", portName, err, dbb.ErrorTypePermanent)
	}
	t.port = port
	return t, nil
}

// NewWithPort wraps an already open port
func NewWithPort(port goserial.Port, portName string, opts ...Option) (*Transport, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil port", dbb.ErrInvalidParameter)
	}
	t := newTransport(portName, opts)
	if err := port.SetReadTimeout(t.timeout); err != nil {
		return nil, dbb.NewTransportError("open", portName, err, dbb.ErrorTypePermanent)
	}
	t.port = port
	return t, nil
}

// WriteReport writes one report without its leading report ID byte
func (t *Transport) WriteReport(report []byte) error {
	port, err := t.openPort("write")
	if err != nil {
		return err
	}
	if len(report) == 0 {
		return nil
	}

	data := report[1:]
	for written := 0; written < len(data); {
		n, err := port.Write(data[written:])
		if err != nil {
			return dbb.NewTransportError("write", t.portName,
				fmt.Errorf("%w: %w", dbb.ErrTransportWrite, err), dbb.ErrorTypeTransient)
		}
		if n == 0 {
			return dbb.NewTransportError("write", t.portName,
				fmt.Errorf("%w: port accepted no data", dbb.ErrTransportWrite), dbb.ErrorTypeTransient)
		}
		written += n
	}
	return nil
}

// ReadReport reads exactly size bytes. A read that returns nothing within
// the read timeout fails with a timeout error.
func (t *Transport) ReadReport(size int) ([]byte, error) {
	port, err := t.openPort("read")
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	for got := 0; got < size; {
		n, err := port.Read(buf[got:])
		if err != nil {
			return nil, dbb.NewTransportError("read", t.portName,
				fmt.Errorf("%w: %w", dbb.ErrTransportRead, err), readErrorType(err))
		}
		if n == 0 {
			return nil, dbb.NewTimeoutError("read", t.portName)
		}
		got += n
	}
	return buf, nil
}

// SerialNumber returns the USB serial number of the port
func (t *Transport) SerialNumber() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.serial != "" {
		return t.serial, nil
	}

	ports, err := t.listPorts()
	if err != nil {
		return "", dbb.NewTransportError("serial number", t.portName, err, dbb.ErrorTypePermanent)
	}
	for _, p := range ports {
		if p.Name == t.portName || strings.EqualFold(p.Name, t.portName) {
			if !p.IsUSB {
				break
			}
			t.serial = p.SerialNumber
			return t.serial, nil
		}
	}
	return "", dbb.NewTransportError("serial number", t.portName,
		fmt.Errorf("%w: no USB details for port", dbb.ErrDeviceNotFound), dbb.ErrorTypePermanent)
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	port := t.port
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		return dbb.NewTransportError("close", t.portName, err, dbb.ErrorTypePermanent)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() dbb.TransportType {
	return dbb.TransportSerial
}

// PortName returns the port the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

func (t *Transport) openPort(op string) (goserial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, dbb.NewTransportError(op, t.portName, dbb.ErrTransportClosed, dbb.ErrorTypePermanent)
	}
	return t.port, nil
}

func openErrorType(err error) dbb.ErrorType {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) && portErr.Code() == goserial.PortBusy {
		return dbb.ErrorTypeTransient
	}
	return dbb.ErrorTypePermanent
}

func readErrorType(err error) dbb.ErrorType {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) && portErr.Code() == goserial.PortClosed {
		return dbb.ErrorTypePermanent
	}
	return dbb.ErrorTypeTransient
}

var _ dbb.Transport = (*Transport)(nil)
