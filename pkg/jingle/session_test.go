// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"context"
	"testing"
	"time"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

const (
	nsMockDescription = "urn:mock:description"
	nsMockTransport   = "urn:mock:transport"
	nsMockSecurity    = "urn:mock:security"
)

// newTestPeers creates two Managers linked by an in-memory connection
// pair: alice's and bob's side.
func newTestPeers(t *testing.T) (alice *Manager, connAlice *pipeConnection, bob *Manager, connBob *pipeConnection) {
	t.Helper()

	addrAlice := elements.MustNewAddress("alice@example.org/desk")
	addrBob := elements.MustNewAddress("bob@example.org/mobile")

	connAlice, connBob = newConnectionPair(addrAlice, addrBob)
	return NewManager(connAlice), connAlice, NewManager(connBob), connBob
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	for start := time.Now(); time.Since(start) < time.Second; {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionStateLifecycle(t *testing.T) {
	session := newSession(nil,
		elements.MustNewAddress("alice@example.org/desk"),
		elements.MustNewAddress("bob@example.org/mobile"),
		RoleInitiator, "sid-lifecycle")

	listener := &mockListener{}
	session.AddListener(listener)

	for _, state := range []SessionState{SessionPending, SessionActive, SessionEnded} {
		if !session.updateState(state) {
			t.Fatalf("transition to %v was refused", state)
		}
	}

	// A terminal state must never be left again.
	if session.updateState(SessionPending) {
		t.Error("transition out of a terminal state was accepted")
	}
	if session.State() != SessionEnded {
		t.Errorf("expected state ended, got %v", session.State())
	}

	listener.mutex.Lock()
	defer listener.mutex.Unlock()

	expected := []SessionState{SessionPending, SessionActive, SessionEnded}
	if len(listener.transitions) != len(expected) {
		t.Fatalf("expected %d transitions, got %d", len(expected), len(listener.transitions))
	}
	for i, state := range expected {
		if listener.transitions[i] != state {
			t.Errorf("transition %d: expected %v, got %v", i, state, listener.transitions[i])
		}
	}
}

func TestSessionHappyPath(t *testing.T) {
	alice, connAlice, bob, _ := newTestPeers(t)

	descAdapter := &mockDescriptionAdapter{ns: nsMockDescription}
	transAdapter := &mockTransportAdapter{ns: nsMockTransport}
	handler := newMockDescriptionHandler(nsMockDescription)

	bob.RegisterDescriptionAdapter(descAdapter)
	bob.RegisterTransportAdapter(transAdapter)
	bob.RegisterDescriptionHandler(handler)

	session := alice.NewSession(bob.Connection().LocalAddress())
	aliceListener := &mockListener{}
	session.AddListener(aliceListener)

	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	desc := newMockDescription(nsMockDescription)
	content.SetDescription(desc)
	trans := newMockTransport(nsMockTransport)
	content.SetTransport(trans)
	session.AddContent(content)

	directions := make(chan string, 8)
	trans.onEstablish = func(direction string, _ Connection, callback TransportCallback, _ *Session) {
		directions <- direction
		callback.OnTransportReady(&mockBytestream{})
	}
	desc.onBytestream = func(content *Content, _ BytestreamSession) {
		content.OnContentFinished()
	}

	if err := session.SendInitiate(context.Background(), connAlice); err != nil {
		t.Fatal(err)
	}

	var bobSession *Session
	select {
	case bobSession = <-handler.initiated:
	case <-time.After(time.Second):
		t.Fatal("bob's description handler was not notified")
	}

	if !bobSession.IsResponder() {
		t.Error("bob's session does not carry the responder role")
	}
	if bobSession.State() != SessionPending {
		t.Errorf("expected bob's session pending, got %v", bobSession.State())
	}

	bobListener := &mockListener{}
	bobSession.AddListener(bobListener)

	bobTrans := transAdapter.revived[0]
	bobTrans.onEstablish = func(direction string, _ Connection, callback TransportCallback, _ *Session) {
		directions <- direction
		callback.OnTransportReady(&mockBytestream{})
	}

	if err := bobSession.SendAccept(context.Background(), bob.Connection()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "alice's session to end", func() bool {
		return session.State() == SessionEnded
	})
	waitFor(t, "bob's session to end", func() bool {
		return bobSession.State() == SessionEnded
	})

	if reason := aliceListener.terminatedWith(); reason == nil || reason.Reason != elements.ReasonSuccess {
		t.Errorf("alice's session did not end with success, got %v", reason)
	}
	if reason := bobListener.terminatedWith(); reason == nil || reason.Reason != elements.ReasonSuccess {
		t.Errorf("bob's session did not end with success, got %v", reason)
	}

	waitFor(t, "session deregistration", func() bool {
		return alice.Session(session.Peer(), session.ID()) == nil &&
			bob.Session(bobSession.Peer(), bobSession.ID()) == nil
	})

	trans.mutex.Lock()
	merged := len(trans.acceptedElements)
	trans.mutex.Unlock()
	if merged != 1 {
		t.Errorf("expected one merged session-accept transport state, got %d", merged)
	}

	select {
	case stream := <-desc.streams:
		if stream == nil {
			t.Error("alice's description received a nil byte stream")
		}
	default:
		t.Error("alice's description never received its byte stream")
	}
}

func TestSessionInitiateUnsupportedApplication(t *testing.T) {
	alice, connAlice, bob, _ := newTestPeers(t)

	// bob has no adapters: the proposed application is unknown to him.
	session := alice.NewSession(bob.Connection().LocalAddress())
	listener := &mockListener{}
	session.AddListener(listener)

	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(newMockDescription(nsMockDescription))
	content.SetTransport(newMockTransport(nsMockTransport))
	session.AddContent(content)

	if err := session.SendInitiate(context.Background(), connAlice); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "alice's session to be terminated", func() bool {
		return listener.terminatedWith() != nil
	})

	if reason := listener.terminatedWith(); reason.Reason != elements.ReasonUnsupportedApplications {
		t.Errorf("expected an unsupported-applications reason, got %v", reason)
	}
	if session.State() != SessionEnded {
		t.Errorf("expected state ended, got %v", session.State())
	}
}

func TestSessionAcceptOmittingSecurityTerminates(t *testing.T) {
	alice, connAlice, _, connBob := newTestPeers(t)
	connBob.RegisterRequestHandler(resultHandler{})

	session := alice.NewSession(connBob.LocalAddress())
	listener := &mockListener{}
	session.AddListener(listener)

	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(newMockDescription(nsMockDescription))
	content.SetTransport(newMockTransport(nsMockTransport))
	content.SetSecurity(newMockSecurity(nsMockSecurity))
	session.AddContent(content)

	if err := session.SendInitiate(context.Background(), connAlice); err != nil {
		t.Fatal(err)
	}

	// bob's acceptance drops the negotiated security layer.
	accept := elements.NewSessionAccept(
		session.Initiator(), session.Responder(), session.ID(),
		[]elements.ContentElement{{
			Creator:   elements.CreatorInitiator,
			Name:      content.Name(),
			Senders:   elements.SendersInitiator,
			Transport: &mockChildElement{ns: nsMockTransport},
		}})

	if resp := alice.HandleMessage(accept); resp.IsError() {
		t.Fatalf("the session-accept was refused: %v", resp)
	}

	waitFor(t, "alice's session to be terminated", func() bool {
		return listener.terminatedWith() != nil
	})

	if reason := listener.terminatedWith(); reason.Reason != elements.ReasonSecurityError {
		t.Errorf("expected a security-error reason, got %v", reason)
	}
}

func TestSessionAcceptOutOfOrder(t *testing.T) {
	alice, _, _, connBob := newTestPeers(t)
	connBob.RegisterRequestHandler(resultHandler{})

	session := alice.NewSession(connBob.LocalAddress())
	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(newMockDescription(nsMockDescription))
	content.SetTransport(newMockTransport(nsMockTransport))
	session.AddContent(content)

	// No session-initiate was sent: the session is still fresh.
	accept := elements.NewSessionAccept(
		session.Initiator(), session.Responder(), session.ID(),
		session.contentElements())

	resp := alice.HandleMessage(accept)
	if resp.Condition != elements.ConditionOutOfOrder {
		t.Errorf("expected an out-of-order condition, got %v", resp)
	}
}

func TestSessionContentAcceptUnproposedPanics(t *testing.T) {
	alice, connAlice, _, connBob := newTestPeers(t)
	connBob.RegisterRequestHandler(resultHandler{})

	session := alice.NewSession(connBob.LocalAddress())
	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(newMockDescription(nsMockDescription))
	content.SetTransport(newMockTransport(nsMockTransport))
	session.AddContent(content)

	if err := session.SendInitiate(context.Background(), connAlice); err != nil {
		t.Fatal(err)
	}

	msg := elements.NewContentAccept(
		session.Peer(), session.LocalAddress(), session.ID(),
		[]elements.ContentElement{{
			Creator: elements.CreatorInitiator,
			Name:    "never-proposed",
			Senders: elements.SendersInitiator,
		}})

	defer func() {
		if recover() == nil {
			t.Error("a content-accept for an unproposed content did not panic")
		}
	}()
	alice.HandleMessage(msg)
}

func TestSessionContentAdd(t *testing.T) {
	alice, connAlice, bob, connBob := newTestPeers(t)

	descAdapter := &mockDescriptionAdapter{ns: nsMockDescription}
	transAdapter := &mockTransportAdapter{ns: nsMockTransport}
	handler := newMockDescriptionHandler(nsMockDescription)

	bob.RegisterDescriptionAdapter(descAdapter)
	bob.RegisterTransportAdapter(transAdapter)
	bob.RegisterDescriptionHandler(handler)

	session := alice.NewSession(connBob.LocalAddress())

	content := NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(newMockDescription(nsMockDescription))
	content.SetTransport(newMockTransport(nsMockTransport))
	session.AddContent(content)

	if err := session.SendInitiate(context.Background(), connAlice); err != nil {
		t.Fatal(err)
	}

	var bobSession *Session
	select {
	case bobSession = <-handler.initiated:
	case <-time.After(time.Second):
		t.Fatal("bob's description handler was not notified")
	}

	if err := bobSession.SendAccept(context.Background(), connBob); err != nil {
		t.Fatal(err)
	}

	// alice proposes a second content within the active session.
	extra := NewContent(elements.CreatorInitiator, elements.SendersResponder)
	extra.SetDescription(newMockDescription(nsMockDescription))
	extraTrans := newMockTransport(nsMockTransport)
	extra.SetTransport(extraTrans)

	if err := session.ProposeContent(context.Background(), connAlice, extra); err != nil {
		t.Fatal(err)
	}

	var proposed *Content
	select {
	case proposed = <-handler.contentAdd:
	case <-time.After(time.Second):
		t.Fatal("bob's description handler missed the content-add")
	}

	if err := bobSession.AcceptContent(context.Background(), connBob, proposed); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "alice to adopt the accepted content", func() bool {
		return session.Content(extra.Name()) != nil
	})

	select {
	case establishment := <-extraTrans.established:
		if establishment.direction != "in" {
			t.Errorf("expected alice to establish the receiving side, got %q", establishment.direction)
		}
	case <-time.After(time.Second):
		t.Fatal("alice never started the accepted content's transport")
	}
}
