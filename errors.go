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
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/internal/frame"
	"github.com/ZaparooProject/go-dbb/secure"
)

// Transport errors
var (
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportClosed  = errors.New("transport closed")
	ErrDeviceNotFound   = errors.New("device not found")
)

// Session errors
var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNoSecret            = errors.New("no secret set")
	ErrInvalidReply        = errors.New("invalid application reply")
	ErrFirmwareUnsupported = errors.New("firmware version unsupported, upgrade required")
)

// Frame codec errors, re-exported for errors.Is checks
var (
	ErrChannelMismatch  = frame.ErrChannelMismatch
	ErrCommandMismatch  = frame.ErrCommandMismatch
	ErrMalformedFrame   = frame.ErrMalformedFrame
	ErrSequenceMismatch = frame.ErrSequenceMismatch
	ErrLengthOverrun    = frame.ErrLengthOverrun
	ErrMessageTooLarge  = frame.ErrMessageTooLarge
	ErrHIDError         = frame.ErrDeviceError
)

// Secure channel errors, re-exported for errors.Is checks
var (
	ErrHMACMismatch      = secure.ErrHMACMismatch
	ErrEnvelopeTooShort  = secure.ErrEnvelopeTooShort
	ErrMalformedEnvelope = secure.ErrMalformedEnvelope
	ErrBadPadding        = secure.ErrBadPadding
	ErrKeysDestroyed     = secure.ErrKeysDestroyed
)

// Bootloader errors, re-exported for errors.Is checks
var (
	ErrChunkRejected    = bootloader.ErrChunkRejected
	ErrFirmwareTooLarge = bootloader.ErrFirmwareTooLarge
)

// HIDError is an error frame sent by the device in place of a reply.
type HIDError = frame.HIDError

// UploadError is a chunk rejected by the bootloader.
type UploadError = bootloader.UploadError

// ErrorType classifies transport errors. Nothing in this module retries; the
// classification is for callers deciding whether to reopen the device.
type ErrorType int

const (
	// ErrorTypePermanent means the transport is unusable (unplugged, closed, no permission)
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient means a single read or write failed
	ErrorTypeTransient
	// ErrorTypeTimeout means the device did not answer within the read timeout
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// TransportError wraps a failure of the underlying report I/O
type TransportError struct {
	Err  error
	Op   string
	Path string
	Type ErrorType
}

func (e *TransportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(op, path string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:   op,
		Path: path,
		Err:  err,
		Type: errType,
	}
}

// NewTimeoutError creates a timeout error for a read that got no report
func NewTimeoutError(op, path string) *TransportError {
	return NewTransportError(op, path, ErrTransportTimeout, ErrorTypeTimeout)
}

// GetErrorType returns the classification of a transport error. Errors that
// are not transport errors are reported as permanent.
func GetErrorType(err error) ErrorType {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportRead), errors.Is(err, ErrTransportWrite):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// ProtocolError is a framing failure. The exchange it occurred in is lost;
// the session itself stays usable.
type ProtocolError struct {
	Err error
	Op  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AuthError is a secure channel failure. The session keys have been destroyed
// by the time it is returned; set the secret again to continue.
type AuthError struct {
	Err error
	Op  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DeviceError is an application reply carrying an "error" member. The
// session keys have been destroyed by the time it is returned.
type DeviceError struct {
	Message string
	Command string
	Code    int
}

func (e *DeviceError) Error() string {
	var b strings.Builder
	b.WriteString("device error")
	if e.Code != 0 {
		fmt.Fprintf(&b, " %d", e.Code)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " (%s)", e.Command)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// IsSessionFatal reports whether err ended the secure session, meaning the
// keys were dropped and the secret must be set again.
func IsSessionFatal(err error) bool {
	var authErr *AuthError
	var devErr *DeviceError
	return errors.As(err, &authErr) || errors.As(err, &devErr)
}
