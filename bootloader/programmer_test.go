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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDevice simulates the bootloader side of the report stream
type MockDevice struct {
	handler  func(req []byte) string
	readErr  error
	writeErr error
	pending  []byte
	replies  [][]byte
	requests [][]byte
	reports  [][]byte
}

func NewMockDevice(handler func(req []byte) string) *MockDevice {
	return &MockDevice{handler: handler}
}

// acceptAll acknowledges every request by echoing its opcode
func acceptAll(req []byte) string {
	return string([]byte{req[0], StatusOK}) + " ok"
}

func (m *MockDevice) WriteReport(report []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.reports = append(m.reports, append([]byte(nil), report...))
	m.pending = append(m.pending, report[1:]...)

	if len(m.pending) >= SendBufferSize {
		req := append([]byte(nil), m.pending[:SendBufferSize]...)
		m.pending = nil
		m.requests = append(m.requests, req)

		reply := make([]byte, ReplySize)
		copy(reply, m.handler(req))
		// Deliver the reply over several reads
		for n := 0; n < ReplySize; n += ReportSize {
			m.replies = append(m.replies, reply[n:n+ReportSize])
		}
	}
	return nil
}

func (m *MockDevice) ReadReport(size int) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.replies) == 0 {
		return nil, io.ErrNoProgress
	}
	data := m.replies[0]
	m.replies = m.replies[1:]
	if len(data) > size {
		data = data[:size]
	}
	return data, nil
}

func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i % 251)
	}
	return img
}

func TestSplit_ChunkIndexing(t *testing.T) {
	t.Parallel()

	chunks, err := Split(bytes.NewReader(testImage(9000)), ChunkSize)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, byte(i), c.Index())
	}
	assert.Len(t, chunks[0].Data, ChunkSize)
	assert.Len(t, chunks[1].Data, ChunkSize)
	assert.Len(t, chunks[2].Data, 9000-2*ChunkSize)
}

func TestSplit_ExactMultiple(t *testing.T) {
	t.Parallel()

	chunks, err := Split(bytes.NewReader(testImage(2*ChunkSize)), ChunkSize)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[1].Data, ChunkSize)

	chunks, err = Split(bytes.NewReader(nil), ChunkSize)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_Index(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seq  int
		want byte
	}{
		{seq: 0, want: 0},
		{seq: 1, want: 1},
		{seq: 254, want: 254},
		{seq: 255, want: 0},
		{seq: 256, want: 1},
		{seq: 510, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, Chunk{Seq: tt.seq}.Index(), "seq %d", tt.seq)
	}
}

func TestChunk_Encode(t *testing.T) {
	t.Parallel()

	msg := Chunk{Seq: 256, Data: []byte{0xAA, 0xBB}}.Encode()
	assert.Equal(t, []byte{0x77, 0x01, 0xAA, 0xBB}, msg)
}

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     []byte
		want    Reply
		wantOK  bool
		wantStr string
	}{
		{
			name:    "success with NUL padding",
			raw:     append([]byte("w0"), make([]byte, 254)...),
			want:    Reply{Code: "w0"},
			wantOK:  true,
			wantStr: "w0",
		},
		{
			name:    "error with message",
			raw:     []byte("wEflash write failed \r\n\x00\x00"),
			want:    Reply{Code: "wE", Message: "flash write failed"},
			wantStr: "wE flash write failed",
		},
		{
			name:    "version reply",
			raw:     []byte("v0 1.0.4\n"),
			want:    Reply{Code: "v0", Message: " 1.0.4"},
			wantOK:  true,
			wantStr: "v0 1.0.4",
		},
		{
			name: "empty",
			raw:  make([]byte, ReplySize),
			want: Reply{},
		},
		{
			name: "single character",
			raw:  []byte("0\x00"),
			want: Reply{Code: "0"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseReply(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, got.OK())
			if tt.wantStr != "" {
				assert.Equal(t, tt.wantStr, got.String())
			}
		})
	}
}

func TestStrategyForVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		want    Strategy
	}{
		{version: "dbb.fw:v1.3.2", want: StrategyLegacy},
		{version: "dbb.fw:v2.0.0", want: StrategyLegacy},
		{version: "dbb.fw:v3.0.0", want: StrategyCurrent},
		{version: "dbb.fw:v7.1.0", want: StrategyCurrent},
		{version: "", want: StrategyCurrent},
	}

	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, StrategyForVersion(tt.version), tt.version)
	}
	assert.Equal(t, "legacy", StrategyLegacy.String())
	assert.Equal(t, "current", StrategyCurrent.String())
	assert.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestSendChunked_LegacyStrategy(t *testing.T) {
	t.Parallel()

	dev := NewMockDevice(acceptAll)
	prog := New(dev, WithStrategy(StrategyLegacy))

	reply, err := prog.SendChunked(context.Background(), []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, "v0", reply.Code)

	require.Len(t, dev.reports, 1)
	assert.Len(t, dev.reports[0], 1+SendBufferSize)
	assert.Equal(t, byte(0x00), dev.reports[0][0])
	assert.Equal(t, byte('v'), dev.reports[0][1])
	assert.Equal(t, make([]byte, SendBufferSize-1), dev.reports[0][2:])
}

func TestSendChunked_CurrentStrategy(t *testing.T) {
	t.Parallel()

	dev := NewMockDevice(acceptAll)
	prog := New(dev)
	assert.Equal(t, StrategyCurrent, prog.Strategy())

	msg := testImage(200)
	_, err := prog.SendChunked(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, dev.reports, (SendBufferSize+ReportSize-1)/ReportSize)
	for _, report := range dev.reports {
		assert.Len(t, report, 1+ReportSize)
		assert.Equal(t, byte(0x00), report[0])
	}

	require.Len(t, dev.requests, 1)
	assert.Equal(t, msg, dev.requests[0][:len(msg)])
	assert.Equal(t, make([]byte, SendBufferSize-len(msg)), dev.requests[0][len(msg):])
}

func TestSendChunked_Errors(t *testing.T) {
	t.Parallel()

	prog := New(NewMockDevice(acceptAll))
	_, err := prog.SendChunked(context.Background(), make([]byte, SendBufferSize+1))
	require.ErrorIs(t, err, ErrMessageTooLarge)

	dev := NewMockDevice(acceptAll)
	dev.writeErr = errors.New("write failed")
	_, err = New(dev).SendChunked(context.Background(), []byte("v"))
	require.ErrorIs(t, err, dev.writeErr)

	dev = NewMockDevice(acceptAll)
	dev.readErr = errors.New("read failed")
	_, err = New(dev).SendChunked(context.Background(), []byte("v"))
	require.ErrorIs(t, err, dev.readErr)

	dev = NewMockDevice(acceptAll)
	dev.replies = [][]byte{{}}
	_, err = New(dev).readReply()
	require.ErrorIs(t, err, ErrEmptyReply)
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	for _, strategy := range []Strategy{StrategyCurrent, StrategyLegacy} {
		strategy := strategy
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			var progress []Progress
			dev := NewMockDevice(acceptAll)
			prog := New(dev,
				WithStrategy(strategy),
				WithProgressCallback(func(p Progress) { progress = append(progress, p) }),
			)

			img := testImage(9000)
			replies, err := prog.Upload(context.Background(), bytes.NewReader(img))
			require.NoError(t, err)
			require.Len(t, replies, 3)
			for _, r := range replies {
				assert.Equal(t, "w0", r.Code)
			}

			require.Len(t, dev.requests, 3)
			var received []byte
			for i, req := range dev.requests {
				assert.Equal(t, OpWrite, req[0])
				assert.Equal(t, byte(i), req[1])
				n := min(ChunkSize, len(img)-len(received))
				received = append(received, req[2:2+n]...)
			}
			assert.Equal(t, img, received)

			require.Len(t, progress, 3)
			assert.Equal(t, 3, progress[2].Chunk)
			assert.Equal(t, 9000, progress[2].BytesWritten)
			assert.Equal(t, 9000, progress[2].TotalBytes)
			assert.InDelta(t, 100.0, progress[2].Percentage(), 0.001)
		})
	}
}

func TestUpload_RejectedChunkAborts(t *testing.T) {
	t.Parallel()

	dev := NewMockDevice(func(req []byte) string {
		if req[1] == 1 {
			return "wEchunk checksum error"
		}
		return acceptAll(req)
	})
	prog := New(dev)

	replies, err := prog.Upload(context.Background(), bytes.NewReader(testImage(4*ChunkSize)))
	require.ErrorIs(t, err, ErrChunkRejected)
	assert.Len(t, replies, 1)
	assert.Len(t, dev.requests, 2, "no chunk is sent after a rejection")

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 1, uerr.Chunk)
	assert.Equal(t, byte(1), uerr.Index)
	assert.Equal(t, "wE", uerr.Code)
	assert.Equal(t, "chunk checksum error", uerr.Message)
	assert.Contains(t, uerr.Error(), "rejected")
}

func TestUpload_WrongOpcodeIsRejection(t *testing.T) {
	t.Parallel()

	dev := NewMockDevice(func([]byte) string { return "x0" })
	_, err := New(dev).Upload(context.Background(), bytes.NewReader(testImage(10)))
	require.ErrorIs(t, err, ErrChunkRejected)
}

func TestUpload_TooLarge(t *testing.T) {
	t.Parallel()

	dev := NewMockDevice(acceptAll)
	_, err := New(dev).Upload(context.Background(), bytes.NewReader(testImage(AppFlashSize+1)))
	require.ErrorIs(t, err, ErrFirmwareTooLarge)
	assert.Empty(t, dev.reports)

	// Size unknown up front: rejected before the offending chunk is written
	dev = NewMockDevice(acceptAll)
	stream := io.MultiReader(bytes.NewReader(testImage(3 * ChunkSize)))
	replies, err := New(dev, WithMaxImageSize(2*ChunkSize)).Upload(context.Background(), stream)
	require.ErrorIs(t, err, ErrFirmwareTooLarge)
	assert.Len(t, replies, 2)
	assert.Len(t, dev.requests, 2)
}

func TestUpload_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev := NewMockDevice(acceptAll)
	_, err := New(dev).Upload(ctx, bytes.NewReader(testImage(100)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dev.reports)
}

func TestUpload_ReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("disk gone")
	r := io.MultiReader(bytes.NewReader(testImage(ChunkSize)), iotestErrReader{err: readErr})
	dev := NewMockDevice(acceptAll)
	replies, err := New(dev).Upload(context.Background(), r)
	require.ErrorIs(t, err, readErr)
	assert.Len(t, replies, 1)
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestNew_NilTransportPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(nil) })
}
