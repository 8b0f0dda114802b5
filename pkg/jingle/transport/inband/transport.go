// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inband

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// DefaultBlockSize is the chunk size proposed for new in-band transports.
const DefaultBlockSize = 4096

// Transport tunnels a content's byte stream through the signalling
// connection, chunked into DataElements.
type Transport struct {
	streamID  string
	blockSize uint64

	mutex  sync.Mutex
	parent *jingle.Content
	stream *Stream
}

// NewTransport creates an in-band transport with a fresh stream id and the
// default block size.
func NewTransport() *Transport {
	return &Transport{
		streamID:  elements.RandomID(),
		blockSize: DefaultBlockSize,
	}
}

// fromElement adopts the peer's stream id and the smaller of both block
// sizes.
func fromElement(el *OpenElement) *Transport {
	blockSize := el.BlockSize
	if blockSize > DefaultBlockSize {
		blockSize = DefaultBlockSize
	}

	return &Transport{
		streamID:  el.StreamID,
		blockSize: blockSize,
	}
}

func (transport *Transport) Namespace() string {
	return Namespace
}

func (transport *Transport) Element() elements.TransportElement {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	return &OpenElement{
		StreamID:  transport.streamID,
		BlockSize: transport.blockSize,
	}
}

func (transport *Transport) SetParent(content *jingle.Content) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	transport.parent = content
}

// Prepare is a no-op: the signalling connection is already established.
func (transport *Transport) Prepare(_ jingle.Connection) {}

// openStream creates the transport's Stream once and hands it to the
// callback. The in-band transport cannot fail to establish.
func (transport *Transport) openStream(conn jingle.Connection, callback jingle.TransportCallback, session *jingle.Session) {
	transport.mutex.Lock()
	if transport.stream == nil {
		transport.stream = newStream(transport, conn, session)
	}
	stream := transport.stream
	transport.mutex.Unlock()

	callback.OnTransportReady(stream)
}

func (transport *Transport) EstablishIncomingBytestream(conn jingle.Connection, callback jingle.TransportCallback, session *jingle.Session) {
	transport.openStream(conn, callback, session)
}

func (transport *Transport) EstablishOutgoingBytestream(conn jingle.Connection, callback jingle.TransportCallback, session *jingle.Session) {
	transport.openStream(conn, callback, session)
}

// HandleSessionAccept adopts the peer's view: the block size shrinks to
// the smaller of both proposals.
func (transport *Transport) HandleSessionAccept(el elements.TransportElement, _ jingle.Connection) error {
	open, ok := el.(*OpenElement)
	if !ok {
		if el == nil {
			return nil
		}
		return fmt.Errorf("in-band transport: unexpected element %T in session-accept", el)
	}

	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if open.StreamID != transport.streamID {
		return fmt.Errorf("in-band transport: session-accept for foreign stream %q", open.StreamID)
	}
	if open.BlockSize < transport.blockSize {
		transport.blockSize = open.BlockSize
	}
	return nil
}

// HandleTransportInfo feeds an inbound chunk into the local Stream after
// verifying its checksum.
func (transport *Transport) HandleTransportInfo(info elements.TransportElement, msg *elements.Message) *elements.Response {
	data, ok := info.(*DataElement)
	if !ok {
		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	transport.mutex.Lock()
	streamID := transport.streamID
	stream := transport.stream
	transport.mutex.Unlock()

	if data.StreamID != streamID {
		log.WithFields(log.Fields{
			"stream": streamID,
			"chunk":  data,
		}).Warn("Received an in-band chunk for a foreign stream")

		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	if err := data.checkIntegrity(); err != nil {
		log.WithFields(log.Fields{
			"stream": streamID,
			"error":  err,
		}).Warn("Received a corrupted in-band chunk")

		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	if stream == nil {
		log.WithFields(log.Fields{
			"stream": streamID,
			"chunk":  data,
		}).Warn("Received an in-band chunk before the stream was established")

		return elements.ErrorOf(msg, elements.ConditionOutOfOrder)
	}

	if err := stream.push(data); err != nil {
		return elements.ErrorOf(msg, elements.ConditionOutOfOrder)
	}
	return elements.ResultOf(msg)
}

// Cleanup closes the Stream.
func (transport *Transport) Cleanup() {
	transport.mutex.Lock()
	stream := transport.stream
	transport.mutex.Unlock()

	if stream != nil {
		stream.closeLocal()
	}
}

func (transport *Transport) String() string {
	return fmt.Sprintf("InbandTransport(%s)", transport.streamID)
}
