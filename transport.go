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
	"time"
)

// Transport defines the interface for report level communication with the
// device. It is implemented by the hidraw and serial backends.
//
// A Transport is owned by exactly one Device. Reports travel as fixed-size
// blocks; the Device never interleaves two exchanges.
type Transport interface {
	// WriteReport writes one report, including the leading report ID byte
	WriteReport(report []byte) error

	// ReadReport blocks until one report of at most size bytes arrives or
	// the read timeout expires. The report ID byte is not included.
	ReadReport(size int) ([]byte, error)

	// SerialNumber returns the USB serial number string, which carries the
	// firmware version (for example "dbb.fw:v7.1.0")
	SerialNumber() (string, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportHIDRaw represents a Linux hidraw character device.
	TransportHIDRaw TransportType = "hidraw"
	// TransportSerial represents a serial bridge carrying raw reports.
	TransportSerial TransportType = "serial"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// Device identification
const (
	// VendorID is the USB vendor ID of the device
	VendorID = 0x03EB
	// ProductID is the USB product ID of the device
	ProductID = 0x2402
	// UsagePage is the vendor defined HID usage page of the application interface
	UsagePage = 0xFFFF
)

// unsupportedFirmware lists serial numbers of firmware releases that must be
// upgraded before application commands are accepted.
var unsupportedFirmware = []string{
	"dbb.fw:v2.0.0",
	"dbb.fw:v1.3.2",
	"dbb.fw:v1.3.1",
}

// IsFirmwareSupported reports whether the application protocol can be used
// with the firmware identified by serial.
func IsFirmwareSupported(serial string) bool {
	for _, v := range unsupportedFirmware {
		if serial == v {
			return false
		}
	}
	return true
}
