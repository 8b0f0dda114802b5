// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package direct

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

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
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the byte stream")
	}
	return nil
}

// newTransportPair creates a sending and a receiving transport on the
// loopback interface, the receiver revived from the sender's element.
func newTransportPair(t *testing.T) (sender, receiver *Transport) {
	t.Helper()

	manager := NewManager("127.0.0.1:0", "", 10)

	st, err := manager.NewTransportForInitiator(nil)
	if err != nil {
		t.Fatal(err)
	}
	sender = st.(*Transport)

	rt, err := manager.TransportFromElement(sender.Element())
	if err != nil {
		t.Fatal(err)
	}
	receiver = rt.(*Transport)

	t.Cleanup(func() {
		sender.Cleanup()
		receiver.Cleanup()
	})

	return sender, receiver
}

func TestDirectStreamEstablishment(t *testing.T) {
	sender, receiver := newTransportPair(t)

	sender.Prepare(nil)
	receiver.Prepare(nil)

	scSender := newStreamCollector()
	scReceiver := newStreamCollector()

	go sender.EstablishOutgoingBytestream(nil, scSender, nil)
	go receiver.EstablishIncomingBytestream(nil, scReceiver, nil)

	outStream := scSender.await(t)
	inStream := scReceiver.await(t)

	payload := bytes.Repeat([]byte("direct transport payload "), 1024)
	go func() {
		if _, err := outStream.Write(payload); err != nil {
			t.Error(err)
		}
		if err := outStream.Close(); err != nil {
			t.Error(err)
		}
	}()

	received, err := io.ReadAll(inStream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("received %d bytes instead of %d", len(received), len(payload))
	}

	_ = inStream.Close()
}

func TestDirectWrongTokenRefused(t *testing.T) {
	sender, _ := newTransportPair(t)
	sender.Prepare(nil)

	conn, err := dial(sender.local[0].hostPort())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	if err := cboring.WriteTextString("not-the-token", conn); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := cboring.ReadTextString(conn); err == nil {
		t.Fatal("expected the connection to be refused")
	}

	select {
	case <-sender.accepted:
		t.Fatal("a connection with a wrong token was accepted")
	default:
	}
}

func TestDirectCandidateMerge(t *testing.T) {
	_, receiver := newTransportPair(t)

	extra := &TransportElement{
		Dest: receiver.dest,
		Candidates: []CandidateElement{
			{ID: "c-high", Host: "192.0.2.1", Port: 4556, Priority: 99},
			{ID: "c-low", Host: "192.0.2.2", Port: 4556, Priority: 0},
		},
	}

	msg := elements.NewTransportInfo(
		elements.MustNewAddress("alice@example.org/desk"),
		elements.MustNewAddress("bob@example.org/mobile"),
		"session-id", elements.CreatorInitiator, "cont-x", extra)

	if resp := receiver.HandleTransportInfo(extra, msg); resp.IsError() {
		t.Fatalf("transport-info failed: %v", resp.Condition)
	}

	candidates := receiver.peers.Candidates()
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if best := candidates[0].(*Candidate); best.el.ID != "c-high" {
		t.Fatalf("expected c-high first, got %s", best.el.ID)
	}

	// A duplicate address must not grow the set.
	if resp := receiver.HandleTransportInfo(extra, msg); resp.IsError() {
		t.Fatalf("repeated transport-info failed: %v", resp.Condition)
	}
	if l := len(receiver.peers.Candidates()); l != 3 {
		t.Fatalf("expected 3 candidates after duplicate merge, got %d", l)
	}

	foreign := &TransportElement{Dest: "someone-else"}
	if resp := receiver.HandleTransportInfo(foreign, msg); !resp.IsError() {
		t.Fatal("expected a foreign token to be rejected")
	}
}

func TestDirectSessionAcceptMergesCandidates(t *testing.T) {
	sender, receiver := newTransportPair(t)

	if err := sender.HandleSessionAccept(receiver.Element(), nil); err != nil {
		t.Fatal(err)
	}
	if l := len(sender.peers.Candidates()); l != 1 {
		t.Fatalf("expected 1 candidate, got %d", l)
	}

	foreign := &TransportElement{Dest: "someone-else"}
	if err := sender.HandleSessionAccept(foreign, nil); err == nil {
		t.Fatal("expected a foreign token to be refused")
	}
}

func TestDirectElementCodec(t *testing.T) {
	el := &TransportElement{
		Dest: "pairing-token",
		Candidates: []CandidateElement{
			{ID: "c0", Host: "example.org", Port: 4556, Priority: 5},
			{ID: "c1", Host: "2001:db8::23", Port: 4557, Priority: 3},
		},
	}

	var buf bytes.Buffer
	if err := cboring.Marshal(el, &buf); err != nil {
		t.Fatal(err)
	}

	decoded, err := elements.GetElementRegistry().DecodeTransport(Namespace, &buf)
	if err != nil {
		t.Fatal(err)
	}

	te := decoded.(*TransportElement)
	if te.Dest != el.Dest || len(te.Candidates) != 2 {
		t.Fatalf("decoded element differs: %v", te)
	}
	if te.Candidates[1].hostPort() != "[2001:db8::23]:4557" {
		t.Fatalf("unexpected host port: %s", te.Candidates[1].hostPort())
	}
}
