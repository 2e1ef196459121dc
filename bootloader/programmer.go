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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Transport is the report level I/O the bootloader protocol needs.
type Transport interface {
	// WriteReport writes one report including its leading report ID byte
	WriteReport(report []byte) error
	// ReadReport blocks until a report of at most size bytes is available
	ReadReport(size int) ([]byte, error)
}

// Programmer uploads firmware to the device bootloader.
//
// Every request is followed by a blocking read of its reply before the next
// request is sent. Programmer is not safe for concurrent use.
type Programmer struct {
	transport Transport
	config    Config
}

// New creates a Programmer on the given transport.
func New(transport Transport, opts ...Option) *Programmer {
	if transport == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		transport: transport,
		config:    cfg,
	}
}

// Strategy returns the send strategy in use.
func (p *Programmer) Strategy() Strategy {
	return p.config.Strategy
}

// SendChunked sends a control message zero padded to the send buffer size
// and returns the parsed reply.
func (p *Programmer) SendChunked(ctx context.Context, msg []byte) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, fmt.Errorf("cancelled: %w", err)
	}

	buf, err := padSendBuffer(msg)
	if err != nil {
		return Reply{}, err
	}

	if err := p.config.Strategy.write(p.transport, buf); err != nil {
		return Reply{}, err
	}

	raw, err := p.readReply()
	if err != nil {
		return Reply{}, err
	}

	reply := ParseReply(raw)
	p.logDebug("bootloader reply", "code", reply.Code, "message", reply.Message)
	return reply, nil
}

// SendChunk sends one firmware chunk and fails with *UploadError if the
// bootloader does not acknowledge it.
func (p *Programmer) SendChunk(ctx context.Context, c Chunk) (Reply, error) {
	reply, err := p.SendChunked(ctx, c.Encode())
	if err != nil {
		return Reply{}, fmt.Errorf("chunk %d: %w", c.Seq, err)
	}

	if !reply.OK() || reply.Op() != OpWrite {
		p.logError("chunk rejected", "chunk", c.Seq, "index", c.Index(), "code", reply.Code)
		return reply, &UploadError{
			Chunk:   c.Seq,
			Index:   c.Index(),
			Code:    reply.Code,
			Message: reply.Message,
		}
	}
	return reply, nil
}

// Upload streams a firmware image to the bootloader in ChunkSize blocks.
// The first rejected chunk aborts the transfer; there is no resume.
func (p *Programmer) Upload(ctx context.Context, r io.Reader) ([]Reply, error) {
	total := imageSize(r)
	if total > p.config.MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFirmwareTooLarge, total, p.config.MaxImageSize)
	}

	p.logInfo("starting firmware upload", "strategy", p.config.Strategy.String(), "size", total)

	startTime := time.Now()
	chunks := NewChunkReader(r, ChunkSize)
	replies := make([]Reply, 0, (total+ChunkSize-1)/ChunkSize)
	written := 0

	for {
		if err := ctx.Err(); err != nil {
			return replies, fmt.Errorf("cancelled: %w", err)
		}

		c, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return replies, fmt.Errorf("read firmware: %w", err)
		}

		if written+len(c.Data) > p.config.MaxImageSize {
			return replies, fmt.Errorf("%w: more than %d bytes", ErrFirmwareTooLarge, p.config.MaxImageSize)
		}

		reply, err := p.SendChunk(ctx, c)
		if err != nil {
			return replies, err
		}
		replies = append(replies, reply)
		written += len(c.Data)

		p.logDebug("chunk loaded", "chunk", c.Seq, "index", c.Index(), "code", reply.Code)
		p.reportProgress(Progress{
			Reply:        reply,
			Chunk:        c.Seq + 1,
			BytesWritten: written,
			TotalBytes:   total,
			ElapsedTime:  time.Since(startTime),
		})
	}

	p.logInfo("firmware upload complete", "chunks", len(replies), "bytes", written)
	return replies, nil
}

// readReply accumulates reads until ReplySize bytes have arrived.
func (p *Programmer) readReply() ([]byte, error) {
	reply := make([]byte, 0, ReplySize)
	for len(reply) < ReplySize {
		data, err := p.transport.ReadReport(ReplySize)
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmptyReply
		}
		reply = append(reply, data...)
	}
	return reply, nil
}

// imageSize returns the image size when the reader can report it.
func imageSize(r io.Reader) int {
	switch v := r.(type) {
	case interface{ Len() int }:
		return v.Len()
	case *os.File:
		if info, err := v.Stat(); err == nil && info.Mode().IsRegular() {
			return int(info.Size())
		}
	}
	return 0
}

func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

func (p *Programmer) logDebug(msg string, keysAndValues ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (p *Programmer) logInfo(msg string, keysAndValues ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

func (p *Programmer) logError(msg string, keysAndValues ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
