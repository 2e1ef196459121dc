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

import "time"

// Progress describes the state of an upload after a chunk was acknowledged.
type Progress struct {
	// Reply is the bootloader's answer to the chunk
	Reply Reply

	// Chunk is the number of chunks acknowledged so far
	Chunk int

	// BytesWritten is the number of firmware bytes acknowledged so far
	BytesWritten int

	// TotalBytes is the image size when known, otherwise 0
	TotalBytes int

	// ElapsedTime is the time since the upload started
	ElapsedTime time.Duration
}

// Percentage returns the completion percentage, or 0 when the image size is
// unknown.
func (p Progress) Percentage() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesWritten) / float64(p.TotalBytes) * 100
}

// ProgressCallback is called after every acknowledged chunk. It runs on the
// upload goroutine and should return quickly.
type ProgressCallback func(Progress)

// Logger is an optional structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds programmer settings.
type Config struct {
	ProgressCallback ProgressCallback
	Logger           Logger
	Strategy         Strategy
	MaxImageSize     int
}

func defaultConfig() Config {
	return Config{
		Strategy:     StrategyCurrent,
		MaxImageSize: AppFlashSize,
	}
}

// Option configures a Programmer.
type Option func(*Config)

// WithStrategy selects the send strategy. Use StrategyForVersion to derive it
// from the device's serial number.
func WithStrategy(s Strategy) Option {
	return func(c *Config) {
		c.Strategy = s
	}
}

// WithProgressCallback sets a callback invoked after every acknowledged chunk.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = cb
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMaxImageSize overrides the largest image Upload accepts.
func WithMaxImageSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxImageSize = n
		}
	}
}
