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

// Package detection finds connected hardware wallets. Backends register a
// Detector on import; DetectAll runs every registered backend.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no devices found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrDetectionTimeout    = errors.New("detection timed out")
)

// USB identification of the device
const (
	VendorID  = 0x03EB
	ProductID = 0x2402
	// UsagePage is the vendor usage page of the application HID interface
	UsagePage = 0xFFFF
)

// TargetVIDPID is the device VID:PID in the format used by IsBlocked
var TargetVIDPID = fmt.Sprintf("%04X:%04X", VendorID, ProductID)

// Mode controls how intrusive detection may be
type Mode int

const (
	// Passive only inspects enumeration data (sysfs, port lists)
	Passive Mode = iota
	// Safe may open candidate nodes to confirm their IDs with the kernel
	Safe
)

func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Confidence is how sure a detector is that a device is a wallet
type Confidence int

const (
	// Low means only part of the identification matched
	Low Confidence = iota
	// Medium means VID:PID matched
	Medium
	// High means VID:PID and the application interface matched
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
}

// DeviceInfo describes one detected device
type DeviceInfo struct {
	Metadata     map[string]string
	Transport    string
	Path         string
	Name         string
	SerialNumber string
	Confidence   Confidence
}

// String returns a one-line description
func (d DeviceInfo) String() string {
	s := fmt.Sprintf("%s %s", d.Transport, d.Path)
	if d.SerialNumber != "" {
		s += fmt.Sprintf(" serial=%q", d.SerialNumber)
	}
	if d.Name != "" {
		s += " (" + d.Name + ")"
	}
	return s
}

// Options configures detection
type Options struct {
	// IgnorePaths lists device paths that are never reported
	IgnorePaths []string
	// Blocklist lists VID:PID pairs that are never reported
	Blocklist []string
	// Transports restricts detection to the named backends; empty means all
	Transports []string
	// Timeout bounds the whole detection run
	Timeout time.Duration
	// MinConfidence drops devices below this confidence
	MinConfidence Confidence
	Mode          Mode
}

// DefaultOptions returns the default detection options
func DefaultOptions() Options {
	return Options{
		Mode:          Passive,
		Timeout:       5 * time.Second,
		Blocklist:     DefaultBlocklist(),
		MinConfidence: Medium,
	}
}

// Detector is implemented by every detection backend
type Detector interface {
	// Detect returns the devices found by this backend
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport name used in DeviceInfo.Transport
	Transport() string
}

var (
	detectorsMu sync.RWMutex
	detectors   = make(map[string]Detector)
)

// RegisterDetector makes a backend available to DetectAll. A later
// registration for the same transport replaces the earlier one.
func RegisterDetector(d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors[d.Transport()] = d
}

// Detectors returns the registered backends sorted by transport name
func Detectors() []Detector {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()

	list := make([]Detector, 0, len(detectors))
	for _, d := range detectors {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Transport() < list[j].Transport()
	})
	return list
}

// DetectAll runs every registered backend
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	return DetectAllContext(context.Background(), opts)
}

// DetectAllContext runs every registered backend and returns the devices
// sorted by descending confidence. Backend failures are only reported when
// no backend found anything.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var devices []DeviceInfo
	var errs []error
	for _, d := range Detectors() {
		if !wantTransport(d.Transport(), opts.Transports) {
			continue
		}
		if ctx.Err() != nil {
			return devices, ErrDetectionTimeout
		}

		found, err := d.Detect(ctx, opts)
		if err != nil {
			if !errors.Is(err, ErrNoDevicesFound) && !errors.Is(err, ErrUnsupportedPlatform) {
				errs = append(errs, fmt.Errorf("%s: %w", d.Transport(), err))
			}
			continue
		}
		devices = append(devices, Filter(found, opts)...)
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

// Filter drops ignored, blocked and low confidence devices
func Filter(devices []DeviceInfo, opts *Options) []DeviceInfo {
	kept := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.Confidence < opts.MinConfidence {
			continue
		}
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid := d.Metadata["vidpid"]; vidpid != "" && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func wantTransport(name string, transports []string) bool {
	if len(transports) == 0 {
		return true
	}
	for _, t := range transports {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}
