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

package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
}

func (f *fakeDetector) Transport() string { return f.transport }

func (f *fakeDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	return f.devices, f.err
}

func TestParseVIDPID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		descriptor string
		vid        uint16
		pid        uint16
		ok         bool
	}{
		{descriptor: "03EB:2402", vid: 0x03EB, pid: 0x2402, ok: true},
		{descriptor: "03eb:2402", vid: 0x03EB, pid: 0x2402, ok: true},
		{descriptor: "VID:03EB PID:2402", vid: 0x03EB, pid: 0x2402, ok: true},
		{descriptor: "vid=1a86 pid=7523", vid: 0x1A86, pid: 0x7523, ok: true},
		{descriptor: "0003:000003EB:00002402", vid: 0x03EB, pid: 0x2402, ok: true},
		{descriptor: "garbage"},
		{descriptor: "12345:1"},
		{descriptor: ""},
	}

	for _, tt := range tests {
		tt := tt
		vid, pid, ok := ParseVIDPID(tt.descriptor)
		assert.Equal(t, tt.ok, ok, tt.descriptor)
		assert.Equal(t, tt.vid, vid, tt.descriptor)
		assert.Equal(t, tt.pid, pid, tt.descriptor)
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("03eb:2402", []string{" 03EB:2402 "}))
	assert.False(t, IsBlocked("03EB:2402", []string{"1A86:7523"}))
	assert.False(t, IsBlocked("03EB:2402", DefaultBlocklist()))
	assert.True(t, IsTarget(0x03EB, 0x2402))
	assert.False(t, IsTarget(0x03EB, 0x2403))
	assert.Equal(t, TargetVIDPID, FormatVIDPID(VendorID, ProductID))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Path: "/dev/hidraw0", Confidence: High, Metadata: map[string]string{"vidpid": TargetVIDPID}},
		{Path: "/dev/hidraw1", Confidence: Low},
		{Path: "/dev/hidraw2", Confidence: High},
		{Path: "/dev/ttyACM0", Confidence: Medium, Metadata: map[string]string{"vidpid": "1234:5678"}},
	}
	opts := DefaultOptions()
	opts.IgnorePaths = []string{"/dev/hidraw2"}
	opts.Blocklist = []string{"1234:5678"}

	kept := Filter(devices, &opts)
	require.Len(t, kept, 1)
	assert.Equal(t, "/dev/hidraw0", kept[0].Path)
}

func TestDetectAll_SortsAndRestricts(t *testing.T) {
	t.Parallel()

	RegisterDetector(&fakeDetector{
		transport: "fake-a",
		devices: []DeviceInfo{
			{Transport: "fake-a", Path: "a0", Confidence: Medium},
			{Transport: "fake-a", Path: "a1", Confidence: High},
		},
	})
	RegisterDetector(&fakeDetector{transport: "fake-b", err: errors.New("bus exploded")})
	RegisterDetector(&fakeDetector{transport: "fake-c", err: ErrUnsupportedPlatform})

	opts := DefaultOptions()
	opts.Transports = []string{"fake-a", "fake-b", "FAKE-C"}

	devices, err := DetectAllContext(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "a1", devices[0].Path)
	assert.Equal(t, "a0", devices[1].Path)

	opts.Transports = []string{"fake-b"}
	_, err = DetectAll(&opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus exploded")

	opts.Transports = []string{"fake-c"}
	_, err = DetectAll(&opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDeviceInfo_String(t *testing.T) {
	t.Parallel()

	info := DeviceInfo{Transport: "hidraw", Path: "/dev/hidraw3", SerialNumber: "dbb.fw:v7.1.0", Name: "Digital Bitbox"}
	assert.Equal(t, `hidraw /dev/hidraw3 serial="dbb.fw:v7.1.0" (Digital Bitbox)`, info.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "safe", Safe.String())
}
