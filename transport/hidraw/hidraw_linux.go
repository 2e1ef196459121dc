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

//go:build linux

package hidraw

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unsafe"

	dbb "github.com/ZaparooProject/go-dbb"
	"github.com/ZaparooProject/go-dbb/internal/sysfs"
	"golang.org/x/sys/unix"
)

// hidraw ioctl numbers, see linux/hidraw.h
const (
	iocRead      = 2
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	uniqSize = 64
)

func hidIOC(nr, size uintptr) uintptr {
	return iocRead<<iocDirShift | size<<iocSizeShift | uintptr('H')<<iocTypeShift | nr<<iocNRShift
}

var (
	hidiocgrawinfo = hidIOC(0x03, unsafe.Sizeof(devInfo{}))
	hidiocgrawuniq = hidIOC(0x08, uniqSize)
)

// devInfo mirrors struct hidraw_devinfo
type devInfo struct {
	BusType uint32
	Vendor  int16
	Product int16
}

// New opens the hidraw node at path
func New(path string, opts ...Option) (*Transport, error) {
	t := newTransport(path, opts)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errType := dbb.ErrorTypePermanent
		if errors.Is(err, unix.EBUSY) {
			errType = dbb.ErrorTypeTransient
		}
		return nil, dbb.NewTransportError("open", path, err, errType)
	}
	t.fd = fd
	return t, nil
}

// WriteReport writes one report, including the leading report ID byte
func (t *Transport) WriteReport(report []byte) error {
	fd, err := t.file("write")
	if err != nil {
		return err
	}

	for {
		n, err := unix.Write(fd, report)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return t.ioError("write", dbb.ErrTransportWrite, err)
		}
		if n != len(report) {
			return dbb.NewTransportError("write", t.path,
				fmt.Errorf("%w: short write %d of %d bytes", dbb.ErrTransportWrite, n, len(report)),
				dbb.ErrorTypeTransient)
		}
		return nil
	}
}

// ReadReport waits up to the read timeout for one input report
func (t *Transport) ReadReport(size int) ([]byte, error) {
	fd, err := t.file("read")
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	timeout := t.timeout
	t.mu.Unlock()

	ms := pollTimeout(timeout)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, t.ioError("read", dbb.ErrTransportRead, err)
		}
		if n == 0 {
			return nil, dbb.NewTimeoutError("read", t.path)
		}
		break
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return nil, dbb.NewTransportError("read", t.path,
			fmt.Errorf("%w: device disconnected", dbb.ErrTransportClosed), dbb.ErrorTypePermanent)
	}

	buf := make([]byte, size)
	for {
		n, err := unix.Read(fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, t.ioError("read", dbb.ErrTransportRead, err)
		}
		return buf[:n], nil
	}
}

// SerialNumber returns the USB serial number string. It asks the kernel via
// HIDIOCGRAWUNIQ and falls back to HID_UNIQ in sysfs on older kernels.
func (t *Transport) SerialNumber() (string, error) {
	t.mu.Lock()
	cached := t.serial
	t.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	fd, err := t.file("serial number")
	if err != nil {
		return "", err
	}

	serial, err := rawUniq(fd)
	if err != nil {
		info, serr := sysfs.Read(t.sysfsRoot, filepath.Base(t.path))
		if serr != nil {
			return "", dbb.NewTransportError("serial number", t.path, errors.Join(err, serr), dbb.ErrorTypePermanent)
		}
		serial = info.Uniq
	}

	t.mu.Lock()
	t.serial = serial
	t.mu.Unlock()
	return serial, nil
}

// Info returns the bus type, vendor ID and product ID of the node
func (t *Transport) Info() (bus uint32, vendor, product uint16, err error) {
	fd, err := t.file("info")
	if err != nil {
		return 0, 0, 0, err
	}

	var info devInfo
	if err := ioctl(fd, hidiocgrawinfo, unsafe.Pointer(&info)); err != nil {
		return 0, 0, 0, dbb.NewTransportError("info", t.path, err, dbb.ErrorTypePermanent)
	}
	return info.BusType, uint16(info.Vendor), uint16(info.Product), nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.fd < 0 {
		return nil
	}
	fd := t.fd
	t.fd = -1
	if err := unix.Close(fd); err != nil {
		return dbb.NewTransportError("close", t.path, err, dbb.ErrorTypePermanent)
	}
	return nil
}

func (t *Transport) file(op string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.fd < 0 {
		return -1, dbb.NewTransportError(op, t.path, dbb.ErrTransportClosed, dbb.ErrorTypePermanent)
	}
	return t.fd, nil
}

func (t *Transport) ioError(op string, kind, err error) error {
	errType := dbb.ErrorTypeTransient
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EBADF) {
		errType = dbb.ErrorTypePermanent
	}
	return dbb.NewTransportError(op, t.path, fmt.Errorf("%w: %w", kind, err), errType)
}

// pollTimeout converts a read timeout to poll milliseconds, rounding up so a
// positive timeout never becomes a non-blocking poll. Zero or less blocks.
func pollTimeout(timeout time.Duration) int {
	if timeout <= 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

func rawUniq(fd int) (string, error) {
	buf := make([]byte, uniqSize)
	if err := ioctl(fd, hidiocgrawuniq, unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("HIDIOCGRAWUNIQ: %w", err)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
