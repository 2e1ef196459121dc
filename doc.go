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

/*
Package dbb provides a host-side driver for the Digital Bitbox hardware wallet.

The device talks over 64 byte USB HID reports. This package frames logical
messages into those reports, optionally wraps them in the authenticated
secure channel derived from the device password, and drives the bootloader
firmware upload protocol.

Features:
  - INIT/CONT report framing with strict channel, command and sequence checks
  - AES-256-CBC + HMAC-SHA256 secure channel with constant-time verification
  - Chunked firmware upload with legacy and current send strategies
  - Linux hidraw and serial bridge transports with auto-detection

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-dbb"
	    "github.com/ZaparooProject/go-dbb/transport/hidraw"
	)

	transport, err := hidraw.New("/dev/hidraw3")
	if err != nil {
	    log.Fatal(err)
	}

	device, err := dbb.New(transport, dbb.WithSecret([]byte(password)))
	if err != nil {
	    log.Fatal(err)
	}
	defer device.Close()

	reply, err := device.SendEncrypted(ctx, []byte(`{"ping":""}`))
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(string(reply.Bytes()))

Firmware Upload:

The bootloader send strategy is chosen once per session from the serial
number (v1.x and v2.x firmware use one oversized write per request):

	f, _ := os.Open("firmware.bin")
	replies, err := device.UploadFirmware(ctx, f)

Error Handling:

Errors carry their kind and can be inspected with errors.As:

	var authErr *dbb.AuthError
	if errors.As(err, &authErr) {
	    // keys were destroyed; set the secret again
	}

ProtocolError is fatal to one exchange, AuthError and DeviceError are fatal
to the secure session (see IsSessionFatal), UploadError aborts an upload and
TransportError wraps report I/O failures. Nothing in this package retries.

Thread Safety:

Device operations are not thread-safe. Every request is followed by a
blocking read of its reply; serialize access in your application.
*/
package dbb
