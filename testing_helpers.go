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
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-dbb/internal/frame"
)

// MockTransport is a scripted transport: reads are served from a queue and
// every write is recorded
type MockTransport struct {
	readErr   error
	writeErr  error
	serialErr error
	serial    string
	reads     [][]byte
	writes    [][]byte
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewMockTransport creates a mock transport reporting a current firmware
func NewMockTransport() *MockTransport {
	return &MockTransport{serial: "dbb.fw:v7.1.0"}
}

// QueueReports appends raw reports to the read queue
func (m *MockTransport) QueueReports(reports ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reports {
		m.reads = append(m.reads, append([]byte(nil), r...))
	}
}

// QueueMessage frames payload as a device reply and queues the frames
func (m *MockTransport) QueueMessage(payload []byte) {
	frames, err := frame.Encode(frame.ChannelID, frame.Command, payload, frame.ReportSize)
	if err != nil {
		panic(fmt.Sprintf("mock reply: %v", err))
	}
	m.QueueReports(frames...)
}

// SetReadError makes every read fail with err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes every write fail with err
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetSerialNumber sets the serial number, and optionally its error
func (m *MockTransport) SetSerialNumber(serial string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serial = serial
	m.serialErr = err
}

// Writes returns the reports written so far
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// WrittenMessage reassembles the written reports into one logical message
func (m *MockTransport) WrittenMessage() ([]byte, error) {
	writes := m.Writes()
	frames := make([][]byte, 0, len(writes))
	for _, w := range writes {
		if len(w) == 0 || w[0] != frame.ReportID {
			return nil, fmt.Errorf("report without report ID: % X", w)
		}
		frames = append(frames, w[1:])
	}
	msg, err := frame.DecodeFrames(frame.ChannelID, frame.Command, 0, frames)
	if err != nil {
		return nil, fmt.Errorf("decode written frames: %w", err)
	}
	return msg, nil
}

// Pending returns the number of queued reports not yet read
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reads)
}

// WriteReport records report
func (m *MockTransport) WriteReport(report []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), report...))
	return nil
}

// ReadReport serves the next queued report; an empty queue is a timeout
func (m *MockTransport) ReadReport(size int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrTransportClosed
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.reads) == 0 {
		return nil, NewTimeoutError("read", "mock")
	}
	r := m.reads[0]
	m.reads = m.reads[1:]
	if len(r) > size {
		r = r[:size]
	}
	return r, nil
}

// SerialNumber returns the configured serial number
func (m *MockTransport) SerialNumber() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serial, m.serialErr
}

// SetTimeout records the timeout
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// Timeout returns the last timeout set
func (m *MockTransport) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsConnected returns true until Close is called
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// BlockingMockTransport blocks reads until Unblock is called, the read
// timeout expires, or the transport is closed. Writes always succeed.
type BlockingMockTransport struct {
	blockChan chan struct{}
	Response  []byte
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewBlockingMockTransport creates a new blocking mock transport
func NewBlockingMockTransport() *BlockingMockTransport {
	return &BlockingMockTransport{
		blockChan: make(chan struct{}),
		timeout:   5 * time.Second,
	}
}

// WriteReport accepts any report
func (m *BlockingMockTransport) WriteReport([]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	return nil
}

// ReadReport blocks until Unblock, the read timeout, or Close
func (m *BlockingMockTransport) ReadReport(int) ([]byte, error) {
	m.mu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	timeout := m.timeout
	m.mu.Unlock()

	if closed {
		return nil, NewTransportError("read", "mock", ErrTransportClosed, ErrorTypePermanent)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-blockChan:
	case <-timer.C:
		return nil, NewTimeoutError("read", "mock")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, NewTransportError("read", "mock", ErrTransportClosed, ErrorTypePermanent)
	}
	return append([]byte(nil), m.Response...), nil
}

// Unblock allows one blocked ReadReport to proceed
func (m *BlockingMockTransport) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// SerialNumber returns a current firmware serial number
func (*BlockingMockTransport) SerialNumber() (string, error) {
	return "dbb.fw:v7.1.0", nil
}

// Close unblocks all operations and marks transport as closed
func (m *BlockingMockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	return nil
}

// SetTimeout configures the read timeout
func (m *BlockingMockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected returns true until Close is called
func (m *BlockingMockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*BlockingMockTransport) Type() TransportType {
	return TransportMock
}
