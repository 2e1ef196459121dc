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

// Command dbbctl talks to a Digital Bitbox over USB HID.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/term"
	"hermannm.dev/devlog"

	dbb "github.com/ZaparooProject/go-dbb"
	"github.com/ZaparooProject/go-dbb/bootloader"
	"github.com/ZaparooProject/go-dbb/detection"
	// Import all detectors to register them
	_ "github.com/ZaparooProject/go-dbb/detection/hidraw"
	_ "github.com/ZaparooProject/go-dbb/detection/serial"
	"github.com/ZaparooProject/go-dbb/transport/hidraw"
	"github.com/ZaparooProject/go-dbb/transport/serial"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var level slog.LevelVar

type config struct {
	devicePath *string
	transport  *string
	timeout    *time.Duration
	secretEnv  *string
	serial     *string
	debug      *bool
	safe       *bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*config, error) {
	cfg := &config{
		devicePath: fs.String("device", "",
			"Device path (e.g., /dev/hidraw3 or /dev/ttyACM0). Leave empty for auto-detection."),
		transport: fs.String("transport", "",
			"Transport for -device: hidraw or serial (default: guessed from the path)"),
		timeout:   fs.Duration("timeout", 5*time.Second, "Read timeout for every report"),
		secretEnv: fs.String("secret-env", "DBB_PASSWORD", "Environment variable holding the device password"),
		serial: fs.String("serial", "",
			"Serial number to report for a serial port without USB details (e.g., dbb.fw:v7.1.0)"),
		debug: fs.Bool("debug", false, "Enable debug output"),
		safe:  fs.Bool("safe", false, "Let detection open hidraw nodes to confirm their IDs"),
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		_, _ = fmt.Fprintf(out, "Usage: dbbctl [flags] <command> [args]\n\nCommands:\n")
		_, _ = fmt.Fprintln(out, "  list              list detected devices")
		_, _ = fmt.Fprintln(out, "  send <json>       send an unencrypted command")
		_, _ = fmt.Fprintln(out, "  secure <json>     send an encrypted command")
		_, _ = fmt.Fprintln(out, "  boot <command>    send a raw bootloader command")
		_, _ = fmt.Fprintln(out, "  flash <file>      upload a firmware image to the bootloader")
		_, _ = fmt.Fprintf(out, "\nFlags:\n")
		fs.PrintDefaults()
	}
}

// transportKind guesses the transport from a device path.
func transportKind(path, override string) (string, error) {
	if override != "" {
		switch kind := strings.ToLower(override); kind {
		case "hidraw", "serial":
			return kind, nil
		default:
			return "", fmt.Errorf("unsupported transport type: %s", override)
		}
	}
	if strings.Contains(strings.ToLower(path), "hidraw") {
		return "hidraw", nil
	}
	return "serial", nil
}

func newTransport(kind, path string, cfg *config) (dbb.Transport, error) {
	timeout := *cfg.timeout
	switch kind {
	case "hidraw":
		transport, err := hidraw.New(path, hidraw.WithTimeout(timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to create hidraw transport: %w", err)
		}
		return transport, nil
	case "serial":
		opts := []serial.Option{serial.WithTimeout(timeout)}
		if *cfg.serial != "" {
			opts = append(opts, serial.WithSerialNumber(*cfg.serial))
		}
		transport, err := serial.New(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create serial transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}

func buildConnectOptions(cfg *config) ([]dbb.ConnectOption, error) {
	opts := []dbb.ConnectOption{dbb.WithDeviceOptions(dbb.WithTimeout(*cfg.timeout))}

	if *cfg.devicePath == "" {
		slog.Info("auto-detecting devices")
		detectOpts := detectionOptions(cfg)
		return append(opts,
			dbb.WithAutoDetection(),
			dbb.WithDetectionOptions(&detectOpts),
			dbb.WithTransportFromDeviceFactory(func(info detection.DeviceInfo) (dbb.Transport, error) {
				slog.Info("using detected device", "device", info.String())
				return newTransport(strings.ToLower(info.Transport), info.Path, cfg)
			})), nil
	}

	kind, err := transportKind(*cfg.devicePath, *cfg.transport)
	if err != nil {
		return nil, err
	}
	slog.Info("opening device", "path", *cfg.devicePath, "transport", kind)
	return append(opts, dbb.WithTransportFactory(func(path string) (dbb.Transport, error) {
		return newTransport(kind, path, cfg)
	})), nil
}

// readSecret takes the password from the environment, or prompts for it
// when stdin is a terminal.
func readSecret(envName string, stderr io.Writer) ([]byte, error) {
	if v := os.Getenv(envName); v != "" {
		return []byte(v), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: set %s", dbb.ErrNoSecret, envName)
	}
	_, _ = fmt.Fprint(stderr, "Device password: ")
	secret, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(secret) == 0 {
		return nil, dbb.ErrNoSecret
	}
	return secret, nil
}

func detectionOptions(cfg *config) detection.Options {
	opts := detection.DefaultOptions()
	if *cfg.safe {
		opts.Mode = detection.Safe
	}
	return opts
}

func listDevices(ctx context.Context, cfg *config, stdout io.Writer) error {
	opts := detectionOptions(cfg)
	opts.MinConfidence = detection.Low

	devices, err := detection.DetectAllContext(ctx, &opts)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(stdout, "no devices found")
		return nil
	}
	for _, d := range devices {
		_, _ = fmt.Fprintf(stdout, "%s [%s]\n", d.String(), d.Confidence)
	}
	return nil
}

func runCommand(ctx context.Context, device *dbb.Device, cfg *config, cmd string, args []string, stdout, stderr io.Writer) error {
	switch cmd {
	case "send":
		reply, err := device.SendPlain(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(reply.Bytes()))

	case "secure":
		secret, err := readSecret(*cfg.secretEnv, stderr)
		if err != nil {
			return err
		}
		device.SetSecret(secret)
		clear(secret)

		reply, err := device.SendEncrypted(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(reply.Bytes()))

	case "boot":
		reply, err := device.SendBoot(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, reply.String())

	case "flash":
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open firmware: %w", err)
		}
		defer func() { _ = f.Close() }()

		replies, err := device.UploadFirmware(ctx, f,
			bootloader.WithLogger(slog.Default()),
			bootloader.WithProgressCallback(func(p bootloader.Progress) {
				slog.Info("chunk written", "chunk", p.Chunk, "bytes", p.BytesWritten,
					"percent", fmt.Sprintf("%.1f", p.Percentage()))
			}))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "firmware uploaded in %d chunks\n", len(replies))

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// argCount is the number of arguments each device command takes
var argCount = map[string]int{
	"send":   1,
	"secure": 1,
	"boot":   1,
	"flash":  1,
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dbbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)

	cfg, err := parseFlags(fs, args)
	if err != nil {
		return exitUsage
	}

	if *cfg.debug {
		level.Set(slog.LevelDebug)
		dbb.SetDebugEnabled(true)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cmd == "list" {
		if err := listDevices(ctx, cfg, stdout); err != nil {
			slog.Error("list failed", "error", err)
			return exitError
		}
		return exitOK
	}

	want, ok := argCount[cmd]
	if !ok || len(cmdArgs) != want {
		fs.Usage()
		return exitUsage
	}

	connectOpts, err := buildConnectOptions(cfg)
	if err != nil {
		slog.Error("invalid flags", "error", err)
		return exitUsage
	}

	device, err := dbb.ConnectDevice(ctx, *cfg.devicePath, connectOpts...)
	if err != nil {
		slog.Error("failed to connect to device", "error", err)
		return exitError
	}
	defer func() { _ = device.Close() }()

	if serialNumber, err := device.SerialNumber(); err == nil {
		slog.Info("connected", "serial", serialNumber)
	}

	if err := runCommand(ctx, device, cfg, cmd, cmdArgs, stdout, stderr); err != nil {
		slog.Error(cmd+" failed", "error", err, "session_reset", dbb.IsSessionFatal(err))
		return exitError
	}
	return exitOK
}

func main() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stderr, &devlog.Options{
		Level: &level,
	})))
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
