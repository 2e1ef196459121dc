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
	"errors"
	"fmt"
	"io"
)

// ChunkReader splits a firmware stream into fixed-size chunks. Only the last
// chunk may be shorter.
type ChunkReader struct {
	r    io.Reader
	size int
	seq  int
	eof  bool
}

// NewChunkReader reads chunks of size bytes from r.
func NewChunkReader(r io.Reader, size int) *ChunkReader {
	if size <= 0 {
		size = ChunkSize
	}
	return &ChunkReader{r: r, size: size}
}

// Next returns the next chunk, or io.EOF once the stream is exhausted.
func (c *ChunkReader) Next() (Chunk, error) {
	if c.eof {
		return Chunk{}, io.EOF
	}

	data := make([]byte, c.size)
	n, err := io.ReadFull(c.r, data)
	switch {
	case errors.Is(err, io.EOF):
		c.eof = true
		return Chunk{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.eof = true
	case err != nil:
		return Chunk{}, fmt.Errorf("read chunk %d: %w", c.seq, err)
	}

	chunk := Chunk{Seq: c.seq, Data: data[:n]}
	c.seq++
	return chunk, nil
}

// Split reads the whole stream into chunks.
func Split(r io.Reader, size int) ([]Chunk, error) {
	cr := NewChunkReader(r, size)
	var chunks []Chunk
	for {
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
