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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{name: "empty ignore list", devicePath: "/dev/hidraw0", ignorePaths: []string{}, expected: false},
		{name: "empty device path", devicePath: "", ignorePaths: []string{"/dev/hidraw0"}, expected: false},
		{name: "exact match hidraw", devicePath: "/dev/hidraw3", ignorePaths: []string{"/dev/hidraw3"}, expected: true},
		{name: "exact match windows port", devicePath: "COM4", ignorePaths: []string{"COM4"}, expected: true},
		{name: "case insensitive", devicePath: "/dev/ttyACM0", ignorePaths: []string{"/DEV/TTYACM0"}, expected: true},
		{name: "no match", devicePath: "/dev/hidraw1", ignorePaths: []string{"/dev/hidraw0"}, expected: false},
		{
			name:        "multiple paths with match",
			devicePath:  "/dev/hidraw1",
			ignorePaths: []string{"/dev/hidraw0", "/dev/hidraw1", "COM2"},
			expected:    true,
		},
		{name: "relative components", devicePath: "/dev/../dev/hidraw2", ignorePaths: []string{"/dev/hidraw2"}, expected: true},
		{name: "empty strings in ignore list", devicePath: "/dev/hidraw2", ignorePaths: []string{"", "/dev/hidraw2"}, expected: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestOptionsWithIgnorePaths(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Nil(t, opts.IgnorePaths)
	assert.Equal(t, Passive, opts.Mode)
	assert.Equal(t, Medium, opts.MinConfidence)

	opts.IgnorePaths = []string{"/dev/hidraw0", "COM2"}
	assert.Len(t, opts.IgnorePaths, 2)
}
