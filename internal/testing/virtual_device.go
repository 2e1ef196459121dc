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

// Package testing provides a virtual wallet that speaks the report framing,
// the secure channel and the bootloader protocol for use in tests.
package testing

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	dbb "github.com/ZaparooProject/go-dbb"
	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/internal/frame"
	"github.com/ZaparooProject/go-dbb/secure"
)

// Handler answers one decrypted application command with a JSON reply
type Handler func(cmd []byte) []byte

// Mode selects which protocol the virtual device speaks
type Mode int

const (
	// ModeApplication answers framed JSON commands
	ModeApplication Mode = iota
	// ModeBootloader answers fixed-size bootloader requests
	ModeBootloader
)

// VirtualDevice implements dbb.Transport on top of an in-memory wallet
type VirtualDevice struct {
	keys *secure.Keys
	// Handler answers application commands; DefaultHandler when nil
	Handler Handler
	// FrameHook may rewrite reply frames before they are queued
	FrameHook func(frames [][]byte) [][]byte
	// ChunkHook may override the status of a firmware chunk ("w0" accepts)
	ChunkHook func(seq int, index byte, data []byte) string
	// Serial is returned by SerialNumber
	Serial string

	dec      *frame.Decoder
	pending  [][]byte
	writes   [][]byte
	bootBuf  []byte
	firmware []byte
	commands [][]byte

	chunkSeq   int
	reportSize int
	mode       Mode
	timeout    time.Duration
	mu         sync.Mutex
	closed     bool
}

// NewVirtualDevice creates a virtual wallet in application mode
func NewVirtualDevice(serial string) *VirtualDevice {
	return &VirtualDevice{
		Serial:     serial,
		reportSize: frame.ReportSize,
		dec:        frame.NewDecoder(frame.ChannelID, frame.Command, 0),
	}
}

// SetPassword makes the device expect encrypted commands under password
func (v *VirtualDevice) SetPassword(password string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = secure.DeriveKeys([]byte(password))
}

// SetMode switches between application and bootloader protocols
func (v *VirtualDevice) SetMode(mode Mode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = mode
	v.bootBuf = nil
	v.pending = nil
	v.dec.Reset()
}

// SetReportSize changes the report size used for framing
func (v *VirtualDevice) SetReportSize(size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reportSize = size
}

// Writes returns copies of every report written so far
func (v *VirtualDevice) Writes() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.writes))
	copy(out, v.writes)
	return out
}

// Commands returns every application command received, decrypted
func (v *VirtualDevice) Commands() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.commands))
	copy(out, v.commands)
	return out
}

// Firmware returns the chunk data received by the bootloader, including the
// zero padding of the last chunk
func (v *VirtualDevice) Firmware() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.firmware...)
}

// WriteReport implements dbb.Transport
func (v *VirtualDevice) WriteReport(report []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return dbb.NewTransportError("write", "virtual", dbb.ErrTransportClosed, dbb.ErrorTypePermanent)
	}
	if len(report) == 0 || report[0] != frame.ReportID {
		return dbb.NewTransportError("write", "virtual",
			fmt.Errorf("%w: missing report ID", dbb.ErrTransportWrite), dbb.ErrorTypeTransient)
	}
	v.writes = append(v.writes, append([]byte(nil), report...))

	if v.mode == ModeBootloader {
		v.writeBoot(report[1:])
		return nil
	}
	v.writeApp(report[1:])
	return nil
}

// ReadReport implements dbb.Transport. An empty queue reads as a timeout.
func (v *VirtualDevice) ReadReport(size int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, dbb.NewTransportError("read", "virtual", dbb.ErrTransportClosed, dbb.ErrorTypePermanent)
	}
	if len(v.pending) == 0 {
		return nil, dbb.NewTimeoutError("read", "virtual")
	}

	report := v.pending[0]
	if len(report) > size {
		v.pending[0] = report[size:]
		return append([]byte(nil), report[:size]...), nil
	}
	v.pending = v.pending[1:]
	return report, nil
}

// SerialNumber implements dbb.Transport
func (v *VirtualDevice) SerialNumber() (string, error) {
	return v.Serial, nil
}

// SetTimeout implements dbb.Transport
func (v *VirtualDevice) SetTimeout(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timeout = timeout
	return nil
}

// Close implements dbb.Transport
func (v *VirtualDevice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// IsConnected implements dbb.Transport
func (v *VirtualDevice) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed
}

// Type implements dbb.Transport
func (*VirtualDevice) Type() dbb.TransportType {
	return dbb.TransportMock
}

func (v *VirtualDevice) writeApp(frm []byte) {
	done, err := v.dec.Feed(frm)
	if err != nil {
		v.dec.Reset()
		v.queueFrames(BuildErrorFrame(frame.ErrCodeInvalidSeq, v.reportSize))
		return
	}
	if !done {
		return
	}

	msg := v.dec.Message()
	v.dec.Reset()

	frames, err := frame.Encode(frame.ChannelID, frame.Command, v.answer(msg), v.reportSize)
	if err != nil {
		v.queueFrames(BuildErrorFrame(frame.ErrCodeInvalidLen, v.reportSize))
		return
	}
	if v.FrameHook != nil {
		frames = v.FrameHook(frames)
	}
	v.queueFrames(frames)
}

// answer produces the application reply, sealing it when a password is set
func (v *VirtualDevice) answer(msg []byte) []byte {
	handler := v.Handler
	if handler == nil {
		handler = DefaultHandler
	}

	if v.keys == nil || bytes.HasPrefix(bytes.TrimSpace(msg), []byte("{")) {
		v.commands = append(v.commands, append([]byte(nil), msg...))
		return handler(msg)
	}

	cmd, err := secure.OpenString(string(msg), v.keys)
	if err != nil {
		return ErrorReply(109, "Could not decrypt. Too many failed access attempts will reset the device.")
	}
	v.commands = append(v.commands, cmd)

	reply := handler(cmd)
	env, err := secure.SealString(rand.Reader, reply, v.keys)
	if err != nil {
		return ErrorReply(900, err.Error())
	}
	out, _ := json.Marshal(map[string]string{"ciphertext": env})
	return out
}

func (v *VirtualDevice) writeBoot(data []byte) {
	v.bootBuf = append(v.bootBuf, data...)
	if len(v.bootBuf) < bootloader.SendBufferSize {
		return
	}
	req := v.bootBuf[:bootloader.SendBufferSize]
	v.bootBuf = nil

	status := string([]byte{req[0], bootloader.StatusOK})
	if req[0] == bootloader.OpWrite {
		seq := v.chunkSeq
		index := req[1]
		chunk := req[2 : 2+bootloader.ChunkSize]
		switch {
		case v.ChunkHook != nil:
			status = v.ChunkHook(seq, index, chunk)
		case index != byte(seq%bootloader.IndexModulus):
			status = "wE"
		}
		if len(status) == 2 && status[1] == bootloader.StatusOK {
			v.firmware = append(v.firmware, chunk...)
			v.chunkSeq++
		}
	}

	v.pending = append(v.pending, BuildBootReply(status, v.reportSize)...)
}

func (v *VirtualDevice) queueFrames(frames [][]byte) {
	v.pending = append(v.pending, frames...)
}

// DefaultHandler answers {"ping":...} and {"device":"info"}, rejecting
// everything else
func DefaultHandler(cmd []byte) []byte {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(cmd, &req); err != nil {
		return ErrorReply(101, "Corrupted JSON")
	}
	switch {
	case req["ping"] != nil:
		return []byte(`{"ping":"password"}`)
	case req["device"] != nil:
		return []byte(`{"device":{"serial":"virtual","version":"v7.1.0","lock":false}}`)
	default:
		return ErrorReply(102, "Invalid command")
	}
}

// ErrorReply builds an application error reply
func ErrorReply(code int, message string) []byte {
	out, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
	return out
}
