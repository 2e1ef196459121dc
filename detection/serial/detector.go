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

// Package serial detects wallets behind USB serial bridges. Import it for its
// side effect of registering the detector.
package serial

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-dbb/detection"
	"go.bug.st/serial/enumerator"
)

const transportName = "serial"

type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
}

// New creates a serial port detector
func New() detection.Detector {
	return &detector{listPorts: enumerator.GetDetailedPortsList}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect lists serial ports and keeps the USB ones matching the wallet
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if !port.IsUSB || detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
			continue
		}

		vid, pid, ok := detection.ParseVIDPID(port.VID + ":" + port.PID)
		if !ok || !detection.IsTarget(vid, pid) {
			continue
		}

		devices = append(devices, detection.DeviceInfo{
			Transport:    transportName,
			Path:         port.Name,
			Name:         port.Product,
			SerialNumber: port.SerialNumber,
			Confidence:   detection.Medium,
			Metadata: map[string]string{
				"vidpid": detection.FormatVIDPID(vid, pid),
			},
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
