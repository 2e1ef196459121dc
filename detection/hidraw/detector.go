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

// Package hidraw detects wallets among the Linux hidraw nodes. Import it for
// its side effect of registering the detector.
package hidraw

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ZaparooProject/go-dbb/detection"
	"github.com/ZaparooProject/go-dbb/internal/sysfs"
	rawtransport "github.com/ZaparooProject/go-dbb/transport/hidraw"
)

const transportName = "hidraw"

// nodeInfo is what an opened node reports about itself
type nodeInfo struct {
	serial  string
	vendor  uint16
	product uint16
}

type detector struct {
	probe func(path string) (nodeInfo, error)
	root  string
}

// New creates a hidraw detector reading the given sysfs class directory.
// An empty root selects /sys/class/hidraw.
func New(root string) detection.Detector {
	if root == "" {
		root = sysfs.HIDRawClass
	}
	return &detector{root: root, probe: probeNode}
}

// probeNode opens a node and asks the kernel for its IDs and serial number
func probeNode(path string) (nodeInfo, error) {
	t, err := rawtransport.New(path)
	if err != nil {
		return nodeInfo{}, err
	}
	defer func() { _ = t.Close() }()

	_, vendor, product, err := t.Info()
	if err != nil {
		return nodeInfo{}, err
	}
	serial, _ := t.SerialNumber()
	return nodeInfo{vendor: vendor, product: product, serial: serial}, nil
}

func init() {
	detection.RegisterDetector(New(""))
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect searches the hidraw class for the wallet's application interface
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}
	return d.scan(ctx, opts)
}

func (d *detector) scan(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	nodes, err := sysfs.Scan(d.root)
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, node := range nodes {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if !detection.IsTarget(node.Vendor, node.Product) {
			continue
		}

		path := node.DevPath()
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		info := deviceInfo(node)
		if opts.Mode == detection.Safe && d.probe != nil && !d.verify(&info) {
			continue
		}
		devices = append(devices, info)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// deviceInfo grades a node. The wallet exposes its application interface as
// interface 0 with the vendor usage page; anything else sharing the VID:PID
// (e.g. the U2F interface) is only a low confidence match.
func deviceInfo(node sysfs.HIDRaw) detection.DeviceInfo {
	info := detection.DeviceInfo{
		Transport:    transportName,
		Path:         node.DevPath(),
		Name:         node.HIDName,
		SerialNumber: node.Uniq,
		Confidence:   detection.Low,
		Metadata: map[string]string{
			"vidpid":    detection.FormatVIDPID(node.Vendor, node.Product),
			"node":      node.Name,
			"interface": fmt.Sprintf("%d", node.Interface),
		},
	}
	if node.UsagePage != 0 {
		info.Metadata["usage_page"] = fmt.Sprintf("0x%04X", node.UsagePage)
	}

	switch {
	case node.UsagePage == detection.UsagePage || node.Interface == 0:
		info.Confidence = detection.High
	case node.UsagePage == 0 && node.Interface < 0:
		info.Confidence = detection.Medium
	}
	return info
}

// verify opens the node in Safe mode. A node whose kernel IDs do not match
// is dropped; a node that cannot be opened keeps its sysfs grading.
func (d *detector) verify(info *detection.DeviceInfo) bool {
	probed, err := d.probe(info.Path)
	if err != nil {
		info.Metadata["probe_error"] = err.Error()
		return true
	}
	if !detection.IsTarget(probed.vendor, probed.product) {
		return false
	}

	info.Metadata["probed"] = "true"
	if info.SerialNumber == "" {
		info.SerialNumber = probed.serial
	}
	if info.Confidence == detection.Medium {
		info.Confidence = detection.High
	}
	return true
}
