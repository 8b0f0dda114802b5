// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xchacha

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jingle7/jingle7-go/pkg/jingle"
)

const (
	// chunkLength is the maximum plaintext length sealed into one frame.
	chunkLength = 16384

	// maxFrameLength bounds inbound frame headers against hostile peers.
	maxFrameLength = chunkLength + 1024
)

// cryptoStream seals written bytes into length-prefixed frames and opens
// read frames, each carrying its own random nonce. A frame on the wire is
// a 4 byte big endian length followed by nonce and ciphertext.
type cryptoStream struct {
	inner jingle.BytestreamSession
	aead  cipher.AEAD

	leftover []byte
}

func newCryptoStream(inner jingle.BytestreamSession, aead cipher.AEAD) *cryptoStream {
	return &cryptoStream{
		inner: inner,
		aead:  aead,
	}
}

func (stream *cryptoStream) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		chunk := p
		if len(chunk) > chunkLength {
			chunk = chunk[:chunkLength]
		}

		if err = stream.writeFrame(chunk); err != nil {
			return
		}

		n += len(chunk)
		p = p[len(chunk):]
	}
	return
}

func (stream *cryptoStream) writeFrame(chunk []byte) error {
	nonce := make([]byte, stream.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	frame := stream.aead.Seal(nonce, nonce, chunk, nil)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))

	if _, err := stream.inner.Write(header[:]); err != nil {
		return err
	}
	_, err := stream.inner.Write(frame)
	return err
}

func (stream *cryptoStream) Read(p []byte) (int, error) {
	if len(stream.leftover) == 0 {
		chunk, err := stream.readFrame()
		if err != nil {
			return 0, err
		}
		stream.leftover = chunk
	}

	n := copy(p, stream.leftover)
	stream.leftover = stream.leftover[n:]
	return n, nil
}

func (stream *cryptoStream) readFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(stream.inner, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length < uint32(stream.aead.NonceSize())+uint32(stream.aead.Overhead()) || length > maxFrameLength {
		return nil, fmt.Errorf("xchacha stream: invalid frame length %d", length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(stream.inner, frame); err != nil {
		return nil, err
	}

	nonce := frame[:stream.aead.NonceSize()]
	chunk, err := stream.aead.Open(nil, nonce, frame[stream.aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("xchacha stream: opening a frame failed: %w", err)
	}
	return chunk, nil
}

func (stream *cryptoStream) Close() error {
	return stream.inner.Close()
}
