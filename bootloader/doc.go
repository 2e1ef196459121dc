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

// Package bootloader implements the chunked firmware upload protocol spoken
// by the device bootloader.
//
// # Overview
//
// Every request is zero padded to a fixed 4098 byte send buffer and written
// using one of two strategies, chosen once per session from the device's
// serial number:
//   - StrategyLegacy (v1.x, v2.x): the whole buffer as one oversized report
//   - StrategyCurrent: the buffer split into 64 byte reports
//
// After every request the host reads a 256 byte reply, which may take
// several physical reads. The reply is a two character status code (the
// echoed opcode and a status character, '0' meaning success) followed by
// free text.
//
// # Uploading Firmware
//
// Firmware is sent in 4096 byte chunks, each framed as
// 0x77 || (index mod 255) || data. The transfer is strictly sequential and
// the first rejected chunk aborts it with *UploadError:
//
//	serial, _ := transport.SerialNumber()
//	prog := bootloader.New(transport,
//	    bootloader.WithStrategy(bootloader.StrategyForVersion(serial)),
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("chunk %d: %s\n", p.Chunk, p.Reply)
//	    }),
//	)
//
//	f, _ := os.Open("firmware.bin")
//	defer f.Close()
//	if _, err := prog.Upload(ctx, f); err != nil {
//	    var uerr *bootloader.UploadError
//	    if errors.As(err, &uerr) {
//	        // flash again from the start
//	    }
//	}
//
// # Logging
//
// Provide a Logger with WithLogger to receive debug output; *slog.Logger
// satisfies the interface.
package bootloader
