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
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/detection"
	"github.com/ZaparooProject/go-dbb/internal/frame"
	"github.com/ZaparooProject/go-dbb/secure"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Random is the source of initialization vectors
	Random io.Reader
	// BootStrategy overrides the bootloader strategy derived from the serial number
	BootStrategy *bootloader.Strategy
	// Timeout is the transport read timeout, applied by New and WithTimeout
	Timeout time.Duration
	// ReportSize is the HID report size used for framing
	ReportSize int
	// MaxMessageSize caps the declared length of a reply; 0 means the
	// largest message the report size can carry
	MaxMessageSize int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Random:     rand.Reader,
		Timeout:    5 * time.Second,
		ReportSize: frame.ReportSize,
	}
}

// Device is a session with one hardware wallet.
//
// The Device owns its transport exclusively. Every request is followed by a
// blocking read of its reply before the next one is sent, so a Device is NOT
// safe for concurrent use; wrap it with a mutex or serialize calls.
//
// Session keys derived from the secret live until ClearSecret, Close, or the
// first authentication or device error, whichever comes first.
type Device struct {
	transport    Transport
	config       *DeviceConfig
	keys         *secure.Keys
	bootStrategy *bootloader.Strategy
	serial       string
	serialKnown  bool
}

// New creates a new device session on the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	if err := device.SetTimeout(device.config.Timeout); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			device.ClearSecret()
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// SetTimeout sets the read timeout of the transport
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// ReportSize returns the report size used for framing
func (d *Device) ReportSize() int {
	return d.config.ReportSize
}

// MaxMessageSize returns the largest reply length the Device accepts
func (d *Device) MaxMessageSize() int {
	limit := frame.MaxPayload(d.config.ReportSize)
	if d.config.MaxMessageSize > 0 && d.config.MaxMessageSize < limit {
		return d.config.MaxMessageSize
	}
	return limit
}

// SerialNumber returns the device serial number. It is read from the
// transport once and cached for the lifetime of the session.
func (d *Device) SerialNumber() (string, error) {
	if d.serialKnown {
		return d.serial, nil
	}

	serial, err := d.transport.SerialNumber()
	if err != nil {
		return "", d.transportError("serial number", err)
	}
	d.serial = serial
	d.serialKnown = true
	debugf("device serial number %q", serial)
	return serial, nil
}

// SetSecret derives new session keys from secret, destroying any previous
// keys. The caller may clear secret afterwards.
func (d *Device) SetSecret(secret []byte) {
	d.ClearSecret()
	d.keys = secure.DeriveKeys(secret)
}

// ClearSecret destroys the session keys
func (d *Device) ClearSecret() {
	if d.keys != nil {
		d.keys.Destroy()
		d.keys = nil
		debugln("session keys destroyed")
	}
}

// HasSecret reports whether usable session keys are held
func (d *Device) HasSecret() bool {
	return d.keys != nil && !d.keys.Destroyed()
}

// Close destroys the session keys and closes the transport
func (d *Device) Close() error {
	d.ClearSecret()
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// Exchange sends payload as one framed message and returns the reassembled
// reply. The context is checked between reports only; a report in flight
// is bounded by the transport read timeout.
func (d *Device) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	frames, err := frame.Encode(frame.ChannelID, frame.Command, payload, d.config.ReportSize)
	if err != nil {
		return nil, &ProtocolError{Op: "encode", Err: err}
	}

	for i, frm := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("exchange cancelled after %d frames: %w", i, err)
		}
		if err := d.transport.WriteReport(frame.Report(frm)); err != nil {
			return nil, d.transportError("write", err)
		}
	}
	debugf("sent %d bytes in %d frames", len(payload), len(frames))

	dec := frame.NewDecoder(frame.ChannelID, frame.Command, d.MaxMessageSize())
	for reports := 0; ; reports++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("exchange cancelled after %d reply frames: %w", reports, err)
		}

		report, err := d.transport.ReadReport(d.config.ReportSize)
		if err != nil {
			return nil, d.transportError("read", err)
		}

		done, err := dec.Feed(report)
		if err != nil {
			return nil, &ProtocolError{Op: "decode", Err: err}
		}
		if done {
			debugf("received %d bytes in %d frames", dec.Length(), reports+1)
			return dec.Message(), nil
		}
	}
}

// SendPlain sends an unencrypted command and returns the JSON reply. A
// reply with an "error" member is returned as *DeviceError and destroys
// the session keys.
func (d *Device) SendPlain(ctx context.Context, cmd []byte) (Reply, error) {
	if err := d.checkFirmware(); err != nil {
		return nil, err
	}

	raw, err := d.Exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}

	reply, err := ParseReply(raw)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		d.ClearSecret()
		return reply, err
	}
	return reply, nil
}

// SendEncrypted seals payload with the session keys, exchanges it and
// returns the decrypted JSON reply. A reply without a "ciphertext" member is
// returned as is.
//
// Any verification failure destroys the session keys and returns *AuthError.
// A reply with an "error" member, before or after decryption, destroys them
// and returns *DeviceError.
func (d *Device) SendEncrypted(ctx context.Context, payload []byte) (Reply, error) {
	if !d.HasSecret() {
		return nil, ErrNoSecret
	}
	if err := d.checkFirmware(); err != nil {
		return nil, err
	}

	envelope, err := secure.SealString(d.config.Random, payload, d.keys)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt command: %w", err)
	}

	raw, err := d.Exchange(ctx, []byte(envelope))
	if err != nil {
		return nil, err
	}

	reply, err := ParseReply(raw)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		d.ClearSecret()
		return reply, err
	}

	ciphertext, ok, err := reply.Ciphertext()
	if err != nil {
		d.ClearSecret()
		return nil, &AuthError{Op: "decode", Err: err}
	}
	if !ok {
		return reply, nil
	}

	plain, err := secure.OpenString(ciphertext, d.keys)
	if err != nil {
		d.ClearSecret()
		return nil, &AuthError{Op: "decrypt", Err: err}
	}

	inner, err := ParseReply(plain)
	clear(plain)
	if err != nil {
		return nil, err
	}
	if err := inner.Err(); err != nil {
		d.ClearSecret()
		return inner, err
	}
	return inner, nil
}

// checkFirmware refuses application commands on firmware that requires an
// upgrade first. A transport that cannot report a serial number (a serial
// bridge or simulator) is treated as unknown firmware, which is not refused.
func (d *Device) checkFirmware() error {
	serial, err := d.SerialNumber()
	if err != nil {
		debugf("firmware version unknown: %v", err)
		return nil
	}
	if !IsFirmwareSupported(serial) {
		return fmt.Errorf("%w: %s", ErrFirmwareUnsupported, serial)
	}
	return nil
}

// BootStrategy returns the bootloader send strategy of this session. It is
// resolved once, from WithBootStrategy or else from the serial number; an
// unavailable serial number selects StrategyCurrent.
func (d *Device) BootStrategy() (bootloader.Strategy, error) {
	if d.bootStrategy != nil {
		return *d.bootStrategy, nil
	}

	strategy := bootloader.StrategyCurrent
	if d.config.BootStrategy != nil {
		strategy = *d.config.BootStrategy
	} else if serial, err := d.SerialNumber(); err == nil {
		strategy = bootloader.StrategyForVersion(serial)
	} else {
		debugf("firmware version unknown, using %s bootloader strategy: %v", strategy, err)
	}

	d.bootStrategy = &strategy
	debugf("bootloader strategy %s", strategy)
	return strategy, nil
}

// Bootloader returns a programmer speaking the bootloader protocol on this
// session's transport
func (d *Device) Bootloader(opts ...bootloader.Option) (*bootloader.Programmer, error) {
	strategy, err := d.BootStrategy()
	if err != nil {
		return nil, err
	}

	all := []bootloader.Option{bootloader.WithStrategy(strategy)}
	if logger := debugLogger(); logger != nil {
		all = append(all, bootloader.WithLogger(logger))
	}
	all = append(all, opts...)

	return bootloader.New(bootTransport{d: d}, all...), nil
}

// SendBoot sends a bootloader control message and returns its reply
func (d *Device) SendBoot(ctx context.Context, msg []byte) (bootloader.Reply, error) {
	prog, err := d.Bootloader()
	if err != nil {
		return bootloader.Reply{}, err
	}
	reply, err := prog.SendChunked(ctx, msg)
	if err != nil {
		return bootloader.Reply{}, fmt.Errorf("bootloader command: %w", err)
	}
	return reply, nil
}

// UploadFirmware streams a firmware image to the bootloader. The first
// rejected chunk aborts the upload with *UploadError.
func (d *Device) UploadFirmware(ctx context.Context, r io.Reader, opts ...bootloader.Option) ([]bootloader.Reply, error) {
	prog, err := d.Bootloader(opts...)
	if err != nil {
		return nil, err
	}
	replies, err := prog.Upload(ctx, r)
	if err != nil {
		return replies, fmt.Errorf("firmware upload: %w", err)
	}
	return replies, nil
}

// bootTransport classifies the bootloader's transport failures the same way
// as application exchanges.
type bootTransport struct {
	d *Device
}

func (b bootTransport) WriteReport(report []byte) error {
	if err := b.d.transport.WriteReport(report); err != nil {
		return b.d.transportError("write", err)
	}
	return nil
}

func (b bootTransport) ReadReport(size int) ([]byte, error) {
	data, err := b.d.transport.ReadReport(size)
	if err != nil {
		return nil, b.d.transportError("read", err)
	}
	return data, nil
}

// transportError wraps err as *TransportError unless the transport did so
// already.
func (*Device) transportError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return NewTransportError(op, "", err, GetErrorType(err))
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	detectionOptions       *detection.Options
	deviceOptions          []Option
	autoDetect             bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDetectionOptions sets the options used for auto-detection
func WithDetectionOptions(opts *detection.Options) ConnectOption {
	return func(c *connectConfig) error {
		c.detectionOptions = opts
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// ConnectDevice opens a session on the device at path, or on the first
// detected device when path is empty or auto-detection is enabled.
//
// Example usage:
//
//	// Connect to a specific hidraw node
//	device, err := dbb.ConnectDevice(ctx, "/dev/hidraw3",
//	    dbb.WithTransportFactory(func(path string) (dbb.Transport, error) {
//	        return hidraw.New(path)
//	    }))
//
//	// Auto-detect
//	device, err := dbb.ConnectDevice(ctx, "", dbb.WithAutoDetection(),
//	    dbb.WithTransportFromDeviceFactory(factory))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config := &connectConfig{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	var transport Transport
	var err error
	if config.autoDetect || path == "" {
		transport, err = createAutoDetectedTransport(ctx, config)
	} else {
		transport, err = createManualTransport(path, config.transportFactory)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(ctx context.Context, config *connectConfig) (Transport, error) {
	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := config.detectionOptions
	if opts == nil {
		defaults := detection.DefaultOptions()
		opts = &defaults
	}

	devices, err := detection.DetectAllContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	debugf("using detected device %s (%s)", devices[0].Path, devices[0].Transport)
	return config.transportDeviceFactory(devices[0])
}
