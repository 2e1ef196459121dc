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
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebugEnabled turns on debug output through the default slog logger.
// Key material and plaintext are never logged.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled reports whether debug output is on
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

func debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	slog.Default().Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
}

func debugln(args ...any) {
	if !debugEnabled.Load() {
		return
	}
	slog.Default().Log(context.Background(), slog.LevelDebug, fmt.Sprint(args...))
}

// debugLogger returns the logger handed to the bootloader, or nil when debug
// output is off.
func debugLogger() *slog.Logger {
	if !debugEnabled.Load() {
		return nil
	}
	return slog.Default().With("component", "bootloader")
}
