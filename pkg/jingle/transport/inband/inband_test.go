// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inband

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// relayConn routes every transport-info directly into the linked
// Transport, standing in for a signalling connection.
type relayConn struct {
	address elements.Address

	mutex sync.Mutex
	peer  *Transport
}

func (conn *relayConn) linkPeer(peer *Transport) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	conn.peer = peer
}

func (conn *relayConn) SendRequest(_ context.Context, msg *elements.Message) (*elements.Response, error) {
	conn.mutex.Lock()
	peer := conn.peer
	conn.mutex.Unlock()

	if peer == nil || len(msg.Contents) != 1 {
		return elements.ErrorOf(msg, elements.ConditionItemNotFound), nil
	}
	return peer.HandleTransportInfo(msg.Contents[0].Transport, msg), nil
}

func (conn *relayConn) SendResponse(_ *elements.Response) error {
	return nil
}

func (conn *relayConn) RegisterRequestHandler(_ jingle.RequestHandler) {}

func (conn *relayConn) LocalAddress() elements.Address {
	return conn.address
}

func (conn *relayConn) Close() error {
	return nil
}

// streamCollector captures the established BytestreamSession.
type streamCollector struct {
	ready  chan jingle.BytestreamSession
	failed chan error
}

func newStreamCollector() *streamCollector {
	return &streamCollector{
		ready:  make(chan jingle.BytestreamSession, 1),
		failed: make(chan error, 1),
	}
}

func (sc *streamCollector) OnTransportReady(session jingle.BytestreamSession) {
	sc.ready <- session
}

func (sc *streamCollector) OnTransportFailed(err error) {
	sc.failed <- err
}

func (sc *streamCollector) await(t *testing.T) jingle.BytestreamSession {
	t.Helper()

	select {
	case stream := <-sc.ready:
		return stream
	case err := <-sc.failed:
		t.Fatal(err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the byte stream")
	}
	return nil
}

// newTransportPair wires an initiator and a responder in-band transport
// over relay connections, each attached to its own session and content.
func newTransportPair(t *testing.T) (*Transport, *Transport, *streamCollector, *streamCollector) {
	t.Helper()

	addrAlice := elements.MustNewAddress("alice@example.org/desk")
	addrBob := elements.MustNewAddress("bob@example.org/mobile")

	connAlice := &relayConn{address: addrAlice}
	connBob := &relayConn{address: addrBob}

	ta := NewTransport()

	revived, err := NewManager(0).TransportFromElement(ta.Element())
	if err != nil {
		t.Fatal(err)
	}
	tb := revived.(*Transport)

	connAlice.linkPeer(tb)
	connBob.linkPeer(ta)

	sessionAlice := jingle.NewManager(connAlice).NewSession(addrBob)
	contentAlice := jingle.NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	contentAlice.SetTransport(ta)
	sessionAlice.AddContent(contentAlice)

	sessionBob := jingle.NewManager(connBob).NewSession(addrAlice)
	contentBob := jingle.NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	contentBob.SetTransport(tb)
	sessionBob.AddContent(contentBob)

	scAlice := newStreamCollector()
	scBob := newStreamCollector()

	ta.EstablishOutgoingBytestream(connAlice, scAlice, sessionAlice)
	tb.EstablishIncomingBytestream(connBob, scBob, sessionBob)

	return ta, tb, scAlice, scBob
}

func TestInbandStreamTransfer(t *testing.T) {
	_, _, scAlice, scBob := newTransportPair(t)

	sender := scAlice.await(t)
	receiver := scBob.await(t)

	payload := bytes.Repeat([]byte("fedcba9876543210"), 3*DefaultBlockSize/16)
	payload = append(payload, []byte("trailing")...)

	done := make(chan error, 1)
	go func() {
		if _, err := sender.Write(payload); err != nil {
			done <- err
			return
		}
		done <- sender.Close()
	}()

	received, err := io.ReadAll(receiver)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(received, payload) {
		t.Errorf("payload was mangled: %d bytes instead of %d", len(received), len(payload))
	}
}

func TestInbandChecksumMismatch(t *testing.T) {
	_, tb, _, scBob := newTransportPair(t)
	scBob.await(t)

	chunk := newDataElement(tb.streamID, 0, false, []byte("payload"))
	chunk.Checksum++

	msg := elements.NewTransportInfo(
		elements.MustNewAddress("alice@example.org/desk"),
		elements.MustNewAddress("bob@example.org/mobile"),
		"sid-x", elements.CreatorInitiator, "cont-x", chunk)

	if resp := tb.HandleTransportInfo(chunk, msg); resp.Condition != elements.ConditionBadRequest {
		t.Errorf("a corrupted chunk was accepted: %v", resp)
	}
}

func TestInbandChunkOutOfOrder(t *testing.T) {
	_, tb, _, scBob := newTransportPair(t)
	scBob.await(t)

	chunk := newDataElement(tb.streamID, 7, false, []byte("payload"))
	msg := elements.NewTransportInfo(
		elements.MustNewAddress("alice@example.org/desk"),
		elements.MustNewAddress("bob@example.org/mobile"),
		"sid-x", elements.CreatorInitiator, "cont-x", chunk)

	if resp := tb.HandleTransportInfo(chunk, msg); resp.Condition != elements.ConditionOutOfOrder {
		t.Errorf("an out-of-order chunk was accepted: %v", resp)
	}
}

func TestInbandBlockSizeNegotiation(t *testing.T) {
	ta := NewTransport()

	if err := ta.HandleSessionAccept(&OpenElement{StreamID: ta.streamID, BlockSize: 512}, nil); err != nil {
		t.Fatal(err)
	}
	if ta.blockSize != 512 {
		t.Errorf("expected the block size to shrink to 512, got %d", ta.blockSize)
	}

	if err := ta.HandleSessionAccept(&OpenElement{StreamID: "foreign", BlockSize: 256}, nil); err == nil {
		t.Error("a session-accept for a foreign stream was merged")
	}
}

func TestInbandElementCodec(t *testing.T) {
	open := &OpenElement{StreamID: "stream-1", BlockSize: 2048}

	var buff bytes.Buffer
	if err := open.MarshalCbor(&buff); err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeElement(&buff)
	if err != nil {
		t.Fatal(err)
	}
	if restored, ok := decoded.(*OpenElement); !ok || *restored != *open {
		t.Errorf("open element was mangled: %v", decoded)
	}

	data := newDataElement("stream-1", 3, true, []byte("last words"))
	buff.Reset()
	if err := data.MarshalCbor(&buff); err != nil {
		t.Fatal(err)
	}

	decoded, err = DecodeElement(&buff)
	if err != nil {
		t.Fatal(err)
	}
	restored, ok := decoded.(*DataElement)
	if !ok || restored.Seq != 3 || !restored.Final || !bytes.Equal(restored.Data, data.Data) {
		t.Errorf("data element was mangled: %v", decoded)
	}
	if err := restored.checkIntegrity(); err != nil {
		t.Error(err)
	}
}
