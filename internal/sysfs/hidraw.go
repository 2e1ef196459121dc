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

// Package sysfs reads hidraw device attributes from the Linux sysfs tree.
package sysfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// HIDRawClass is the sysfs class directory listing hidraw nodes
const HIDRawClass = "/sys/class/hidraw"

// ErrNotHIDRaw is returned for nodes without a readable uevent
var ErrNotHIDRaw = errors.New("not a hidraw node")

// HIDRaw describes one hidraw node
type HIDRaw struct {
	// Name is the node name, e.g. "hidraw3"
	Name string
	// HIDName is the product string reported by the kernel (HID_NAME)
	HIDName string
	// Uniq is the USB serial number string (HID_UNIQ)
	Uniq      string
	Bus       uint16
	Vendor    uint16
	Product   uint16
	UsagePage uint16
	// Interface is the USB interface number, or -1 when unknown
	Interface int
}

// DevPath returns the character device path of the node
func (h HIDRaw) DevPath() string {
	return "/dev/" + h.Name
}

// Uevent holds the KEY=value pairs of a uevent file
type Uevent map[string]string

// ParseUevent reads KEY=value lines
func ParseUevent(r io.Reader) (Uevent, error) {
	ev := make(Uevent)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		ev[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read uevent: %w", err)
	}
	return ev, nil
}

// HIDID parses HID_ID ("bus:vendor:product", hex) into its parts
func (ev Uevent) HIDID() (bus, vendor, product uint16, ok bool) {
	parts := strings.Split(ev["HID_ID"], ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var vals [3]uint16
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 32)
		if err != nil || v > 0xFFFF {
			return 0, 0, 0, false
		}
		vals[i] = uint16(v)
	}
	return vals[0], vals[1], vals[2], true
}

// UsagePage returns the first Usage Page item of a HID report descriptor.
func UsagePage(desc []byte) (uint16, bool) {
	for i := 0; i < len(desc); {
		prefix := desc[i]
		if prefix == 0xFE { // long item
			if i+1 >= len(desc) {
				return 0, false
			}
			i += 3 + int(desc[i+1])
			continue
		}

		size := int(prefix & 0x03)
		if size == 3 {
			size = 4
		}
		if i+1+size > len(desc) {
			return 0, false
		}

		if prefix&0xFC == 0x04 {
			var v uint32
			for j := 0; j < size; j++ {
				v |= uint32(desc[i+1+j]) << (8 * j)
			}
			return uint16(v), true
		}
		i += 1 + size
	}
	return 0, false
}

// Read collects the attributes of one node below root (normally HIDRawClass).
func Read(root, name string) (HIDRaw, error) {
	devDir := filepath.Join(root, name, "device")

	f, err := os.Open(filepath.Join(devDir, "uevent"))
	if err != nil {
		return HIDRaw{}, fmt.Errorf("%w: %s: %v", ErrNotHIDRaw, name, err)
	}
	ev, err := ParseUevent(f)
	_ = f.Close()
	if err != nil {
		return HIDRaw{}, err
	}

	info := HIDRaw{
		Name:      name,
		HIDName:   ev["HID_NAME"],
		Uniq:      ev["HID_UNIQ"],
		Interface: -1,
	}
	if bus, vendor, product, ok := ev.HIDID(); ok {
		info.Bus, info.Vendor, info.Product = bus, vendor, product
	}

	if desc, err := os.ReadFile(filepath.Join(devDir, "report_descriptor")); err == nil {
		if page, ok := UsagePage(desc); ok {
			info.UsagePage = page
		}
	}

	info.Interface = interfaceNumber(devDir)
	return info, nil
}

// Scan reads every hidraw node below root, sorted by name.
func Scan(root string) ([]HIDRaw, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hidraw") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	nodes := make([]HIDRaw, 0, len(names))
	for _, name := range names {
		info, err := Read(root, name)
		if err != nil {
			continue
		}
		nodes = append(nodes, info)
	}
	return nodes, nil
}

// interfaceNumber resolves the USB interface from the device link, whose
// parent is named like "1-1.2:1.0".
func interfaceNumber(devDir string) int {
	resolved, err := filepath.EvalSymlinks(devDir)
	if err != nil {
		return -1
	}
	parent := filepath.Base(filepath.Dir(resolved))
	colon := strings.LastIndexByte(parent, ':')
	if colon < 0 {
		return -1
	}
	_, iface, ok := strings.Cut(parent[colon+1:], ".")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(iface)
	if err != nil {
		return -1
	}
	return n
}
