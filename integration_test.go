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

package dbb_test

import (
	"bytes"
	"context"
	"testing"

	dbb "github.com/ZaparooProject/go-dbb"
	"github.com/ZaparooProject/go-dbb/bootloader"
	virt "github.com/ZaparooProject/go-dbb/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVirtualSession(t *testing.T, serial string, opts ...dbb.Option) (*dbb.Device, *virt.VirtualDevice) {
	t.Helper()
	vd := virt.NewVirtualDevice(serial)
	device, err := dbb.New(vd, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })
	return device, vd
}

func firmwareImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*31 + i/7)
	}
	return img
}

func TestIntegration_EncryptedPing(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0", dbb.WithSecret([]byte("test")))
	vd.SetPassword("test")

	reply, err := device.SendEncrypted(context.Background(), []byte(`{"ping":true}`))
	require.NoError(t, err)

	ping, ok := reply.Text("ping")
	require.True(t, ok)
	assert.Equal(t, "password", ping)

	cmds := vd.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, []byte(`{"ping":true}`), cmds[0])

	// The same session keeps working
	reply, err = device.SendEncrypted(context.Background(), []byte(`{"device":"info"}`))
	require.NoError(t, err)
	assert.True(t, reply.Has("device"))
}

func TestIntegration_PlainPing(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0")

	reply, err := device.SendPlain(context.Background(), []byte(`{"ping":""}`))
	require.NoError(t, err)
	assert.True(t, reply.Has("ping"))

	for _, w := range vd.Writes() {
		assert.Len(t, w, 65)
	}
}

func TestIntegration_WrongPassword(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0", dbb.WithSecret([]byte("wrong")))
	vd.SetPassword("test")

	_, err := device.SendEncrypted(context.Background(), []byte(`{"ping":true}`))
	var devErr *dbb.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 109, devErr.Code)
	assert.False(t, device.HasSecret())
}

func TestIntegration_LargeMessage(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("a"), 3000)
	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0", dbb.WithSecret([]byte("test")))
	vd.SetPassword("test")
	vd.Handler = func([]byte) []byte {
		return []byte(`{"echo":"` + string(big) + `"}`)
	}

	reply, err := device.SendEncrypted(context.Background(), []byte(`{"echo":"`+string(big)+`"}`))
	require.NoError(t, err)
	echo, ok := reply.Text("echo")
	require.True(t, ok)
	assert.Equal(t, string(big), echo)
}

func TestIntegration_TamperedFrame(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0", dbb.WithSecret([]byte("test")))
	vd.SetPassword("test")
	vd.FrameHook = func(frames [][]byte) [][]byte {
		// flip one bit of the base64 text in the first frame payload
		frames[0][7+20] ^= 0x01
		return frames
	}

	_, err := device.SendEncrypted(context.Background(), []byte(`{"ping":true}`))
	require.Error(t, err)
	assert.True(t, dbb.IsSessionFatal(err))
	assert.False(t, device.HasSecret())
}

func TestIntegration_ChannelMismatch(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0")
	vd.FrameHook = func(frames [][]byte) [][]byte {
		frames[0] = virt.WithChannel(frames[0], 0x01020304)
		return frames
	}

	_, err := device.SendPlain(context.Background(), []byte(`{"ping":""}`))
	require.ErrorIs(t, err, dbb.ErrChannelMismatch)
	var perr *dbb.ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestIntegration_FirmwareUpload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		serial     string
		strategy   bootloader.Strategy
		reportLen  int
		perRequest int
	}{
		{name: "current", serial: "dbb.fw:v7.1.0", strategy: bootloader.StrategyCurrent, reportLen: 65, perRequest: 65},
		{name: "legacy", serial: "dbb.fw:v2.0.0", strategy: bootloader.StrategyLegacy, reportLen: 1 + bootloader.SendBufferSize, perRequest: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, vd := newVirtualSession(t, tt.serial)
			vd.SetMode(virt.ModeBootloader)

			strategy, err := device.BootStrategy()
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, strategy)

			image := firmwareImage(9000)
			var progress []bootloader.Progress
			replies, err := device.UploadFirmware(context.Background(), bytes.NewReader(image),
				bootloader.WithProgressCallback(func(p bootloader.Progress) {
					progress = append(progress, p)
				}))
			require.NoError(t, err)
			require.Len(t, replies, 3)
			for _, r := range replies {
				assert.Equal(t, "w0", r.Code)
			}

			require.Len(t, progress, 3)
			assert.Equal(t, 9000, progress[2].BytesWritten)
			assert.InDelta(t, 100.0, progress[2].Percentage(), 0.001)

			flashed := vd.Firmware()
			require.Len(t, flashed, 3*bootloader.ChunkSize)
			assert.Equal(t, image, flashed[:len(image)])
			assert.Equal(t, make([]byte, len(flashed)-len(image)), flashed[len(image):])

			writes := vd.Writes()
			require.Len(t, writes, 3*tt.perRequest)
			for _, w := range writes {
				assert.Len(t, w, tt.reportLen)
			}
		})
	}
}

func TestIntegration_FirmwareUploadRejected(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0")
	vd.SetMode(virt.ModeBootloader)
	vd.ChunkHook = func(seq int, _ byte, _ []byte) string {
		if seq == 1 {
			return "wE"
		}
		return "w0"
	}

	replies, err := device.UploadFirmware(context.Background(), bytes.NewReader(firmwareImage(4*bootloader.ChunkSize)))
	require.ErrorIs(t, err, dbb.ErrChunkRejected)
	assert.Len(t, replies, 1)

	var uploadErr *dbb.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, 1, uploadErr.Chunk)
	assert.Equal(t, byte(1), uploadErr.Index)
	assert.Equal(t, "wE", uploadErr.Code)
	assert.Len(t, vd.Firmware(), bootloader.ChunkSize)
}

func TestIntegration_BootCommand(t *testing.T) {
	t.Parallel()

	device, vd := newVirtualSession(t, "dbb.fw:v7.1.0")
	vd.SetMode(virt.ModeBootloader)

	reply, err := device.SendBoot(context.Background(), []byte("s\x00"))
	require.NoError(t, err)
	assert.Equal(t, "s0", reply.Code)
	assert.True(t, reply.OK())
}
