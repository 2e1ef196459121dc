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

package bootloader

import (
	"fmt"
	"strings"
)

// Strategy selects how the fixed-size send buffer is written to the device.
// The set is closed: pick one per session with StrategyForVersion.
type Strategy int

const (
	// StrategyCurrent splits the send buffer into 64 byte reports
	StrategyCurrent Strategy = iota
	// StrategyLegacy writes the whole send buffer as one oversized report (v1.x, v2.x)
	StrategyLegacy
)

func (s Strategy) String() string {
	switch s {
	case StrategyCurrent:
		return "current"
	case StrategyLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// StrategyForVersion picks the strategy from the device's reported version
// or serial number string.
func StrategyForVersion(version string) Strategy {
	if strings.Contains(version, "v1.") || strings.Contains(version, "v2.") {
		return StrategyLegacy
	}
	return StrategyCurrent
}

// write sends an already padded buffer using the strategy.
func (s Strategy) write(t Transport, buf []byte) error {
	switch s {
	case StrategyLegacy:
		report := make([]byte, 1+len(buf))
		report[0] = reportID
		copy(report[1:], buf)
		if err := t.WriteReport(report); err != nil {
			return fmt.Errorf("legacy write: %w", err)
		}
		return nil

	case StrategyCurrent:
		for n := 0; n < len(buf); n += ReportSize {
			report := make([]byte, 1+ReportSize)
			report[0] = reportID
			copy(report[1:], buf[n:min(n+ReportSize, len(buf))])
			if err := t.WriteReport(report); err != nil {
				return fmt.Errorf("write report at offset %d: %w", n, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown bootloader strategy %d", int(s))
	}
}
