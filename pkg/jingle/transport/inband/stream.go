// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inband

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

const chunkSendTimeout = 30 * time.Second

// Stream is the in-band BytestreamSession: writes are chunked into
// transport-info messages, reads are fed by the transport's inbound
// chunks.
type Stream struct {
	transport *Transport
	conn      jingle.Connection
	session   *jingle.Session

	incoming chan []byte
	leftover []byte

	mutex    sync.Mutex
	recvSeq  uint64
	sendSeq  uint64
	recvDone bool
	sendDone bool
}

func newStream(transport *Transport, conn jingle.Connection, session *jingle.Session) *Stream {
	return &Stream{
		transport: transport,
		conn:      conn,
		session:   session,
		incoming:  make(chan []byte, 32),
	}
}

// push enqueues an inbound chunk, enforcing the sequence order. A final
// chunk ends the readable side.
func (stream *Stream) push(data *DataElement) error {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if stream.recvDone {
		return fmt.Errorf("in-band stream %s: chunk after the final one", data.StreamID)
	}
	if data.Seq != stream.recvSeq {
		return fmt.Errorf("in-band stream %s: chunk %d out of order, expected %d",
			data.StreamID, data.Seq, stream.recvSeq)
	}
	stream.recvSeq++

	if len(data.Data) > 0 {
		stream.incoming <- data.Data
	}
	if data.Final {
		stream.recvDone = true
		close(stream.incoming)
	}
	return nil
}

// closeLocal ends the readable side without waiting for a final chunk,
// e.g., when the content is cleaned up.
func (stream *Stream) closeLocal() {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	if !stream.recvDone {
		stream.recvDone = true
		close(stream.incoming)
	}
	stream.sendDone = true
}

func (stream *Stream) Read(p []byte) (int, error) {
	if len(stream.leftover) == 0 {
		chunk, ok := <-stream.incoming
		if !ok {
			return 0, io.EOF
		}
		stream.leftover = chunk
	}

	n := copy(p, stream.leftover)
	stream.leftover = stream.leftover[n:]
	return n, nil
}

// sendChunk delivers one DataElement as a transport-info request.
func (stream *Stream) sendChunk(final bool, data []byte) error {
	stream.mutex.Lock()
	if stream.sendDone {
		stream.mutex.Unlock()
		return fmt.Errorf("in-band stream %s: write on closed stream", stream.transport.streamID)
	}
	seq := stream.sendSeq
	stream.sendSeq++
	if final {
		stream.sendDone = true
	}
	stream.mutex.Unlock()

	content := stream.transport.parent
	el := newDataElement(stream.transport.streamID, seq, final, data)

	msg := elements.NewTransportInfo(
		stream.session.LocalAddress(), stream.session.Peer(), stream.session.ID(),
		content.Creator(), content.Name(), el)

	ctx, cancel := context.WithTimeout(context.Background(), chunkSendTimeout)
	defer cancel()

	if resp, err := stream.conn.SendRequest(ctx, msg); err != nil {
		return err
	} else if resp.IsError() {
		return fmt.Errorf("in-band chunk %d was answered with %v", seq, resp.Condition)
	}
	return nil
}

func (stream *Stream) Write(p []byte) (int, error) {
	blockSize := int(stream.transport.blockSize)

	written := 0
	for written < len(p) {
		end := written + blockSize
		if end > len(p) {
			end = len(p)
		}

		chunk := make([]byte, end-written)
		copy(chunk, p[written:end])

		if err := stream.sendChunk(false, chunk); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

// Close sends the final chunk, ending the peer's readable side.
func (stream *Stream) Close() error {
	stream.mutex.Lock()
	done := stream.sendDone
	stream.mutex.Unlock()

	if done {
		return nil
	}
	return stream.sendChunk(true, nil)
}
