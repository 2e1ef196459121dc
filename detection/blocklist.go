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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBlocklist returns VID:PID pairs that are never reported. It is
// empty; devices sharing the wallet's VID:PID but failing the interface
// check are filtered by confidence instead.
func DefaultBlocklist() []string {
	return nil
}

// IsBlocked checks if a VID:PID pair is in the blocklist (case-insensitive).
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// IsTarget reports whether vid and pid identify the wallet
func IsTarget(vid, pid uint16) bool {
	return vid == VendorID && pid == ProductID
}

// FormatVIDPID formats a VID:PID pair the way IsBlocked expects
func FormatVIDPID(vid, pid uint16) string {
	return fmt.Sprintf("%04X:%04X", vid, pid)
}

// ParseVIDPID extracts VID and PID from the descriptor formats seen during
// enumeration:
//
//	"03EB:2402"                  port enumerators
//	"VID:03EB PID:2402"          human readable listings
//	"0003:000003EB:00002402"     HID_ID from a hidraw uevent (bus:vendor:product)
func ParseVIDPID(descriptor string) (vid, pid uint16, ok bool) {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	if v, p, found := parseLabelled(descriptor); found {
		return v, p, true
	}

	parts := strings.Split(descriptor, ":")
	switch len(parts) {
	case 2:
		return parseHexPair(parts[0], parts[1])
	case 3:
		return parseHexPair(parts[1], parts[2])
	default:
		return 0, 0, false
	}
}

func parseLabelled(descriptor string) (vid, pid uint16, ok bool) {
	vidIdx := strings.Index(descriptor, "VID")
	pidIdx := strings.Index(descriptor, "PID")
	if vidIdx < 0 || pidIdx < 0 {
		return 0, 0, false
	}
	return parseHexPair(
		extractHex(strings.TrimLeft(descriptor[vidIdx+3:], ":= _")),
		extractHex(strings.TrimLeft(descriptor[pidIdx+3:], ":= _")),
	)
}

func parseHexPair(vidStr, pidStr string) (vid, pid uint16, ok bool) {
	v, err := strconv.ParseUint(vidStr, 16, 32)
	if err != nil || v > 0xFFFF {
		return 0, 0, false
	}
	p, err := strconv.ParseUint(pidStr, 16, 32)
	if err != nil || p > 0xFFFF {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}

// extractHex returns the leading run of hex digits.
func extractHex(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && (r < 'A' || r > 'F')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared after cleaning and case folding.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	normalized := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalized == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
