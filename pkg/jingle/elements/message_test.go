// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"bytes"
	"io"
	"testing"

	"github.com/dtn7/cboring"
)

const (
	tnsDescription = "urn:test:description"
	tnsTransport   = "urn:test:transport"
	tnsSecurity    = "urn:test:security"
)

// testChildElement is a minimal ChildElement carrying one payload string.
type testChildElement struct {
	ns      string
	payload string
}

func (el *testChildElement) Namespace() string {
	return el.ns
}

func (el *testChildElement) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(el.payload, w)
}

func (el *testChildElement) UnmarshalCbor(r io.Reader) error {
	s, err := cboring.ReadTextString(r)
	el.payload = s
	return err
}

func init() {
	reg := GetElementRegistry()

	reg.RegisterDescription(tnsDescription, func(r io.Reader) (DescriptionElement, error) {
		el := &testChildElement{ns: tnsDescription}
		return el, el.UnmarshalCbor(r)
	})
	reg.RegisterTransport(tnsTransport, func(r io.Reader) (TransportElement, error) {
		el := &testChildElement{ns: tnsTransport}
		return el, el.UnmarshalCbor(r)
	})
	reg.RegisterSecurity(tnsSecurity, func(r io.Reader) (SecurityElement, error) {
		el := &testChildElement{ns: tnsSecurity}
		return el, el.UnmarshalCbor(r)
	})
}

func TestMessageCborRoundtrip(t *testing.T) {
	initiator := MustNewAddress("alice@example.org/desk")
	responder := MustNewAddress("bob@example.org/mobile")

	msg := NewSessionInitiate(initiator, responder, "sid-1", []ContentElement{{
		Creator:     CreatorInitiator,
		Name:        "cont-1",
		Senders:     SendersInitiator,
		Disposition: "session",
		Description: &testChildElement{ns: tnsDescription, payload: "a file"},
		Transport:   &testChildElement{ns: tnsTransport, payload: "some blocks"},
		Security:    &testChildElement{ns: tnsSecurity, payload: "a cipher"},
	}})

	var buff bytes.Buffer
	if err := cboring.Marshal(msg, &buff); err != nil {
		t.Fatal(err)
	}

	restored := new(Message)
	if err := cboring.Unmarshal(restored, &buff); err != nil {
		t.Fatal(err)
	}

	if restored.ID != msg.ID || restored.Action != ActionSessionInitiate || restored.SessionID != "sid-1" {
		t.Errorf("header fields were mangled: %v", restored)
	}
	if restored.To != responder || restored.From != initiator || restored.Initiator != initiator {
		t.Errorf("addresses were mangled: %v", restored)
	}
	if !restored.Responder.IsEmpty() {
		t.Errorf("expected an empty responder, got %v", restored.Responder)
	}
	if restored.Reason != nil {
		t.Errorf("expected no reason, got %v", restored.Reason)
	}

	if len(restored.Contents) != 1 {
		t.Fatalf("expected one content, got %d", len(restored.Contents))
	}
	content := restored.Contents[0]
	if content.Name != "cont-1" || content.Creator != CreatorInitiator || content.Senders != SendersInitiator {
		t.Errorf("content attributes were mangled: %v", content)
	}

	if el, ok := content.Description.(*testChildElement); !ok || el.payload != "a file" {
		t.Errorf("description child was mangled: %v", content.Description)
	}
	if el, ok := content.Transport.(*testChildElement); !ok || el.payload != "some blocks" {
		t.Errorf("transport child was mangled: %v", content.Transport)
	}
	if el, ok := content.Security.(*testChildElement); !ok || el.payload != "a cipher" {
		t.Errorf("security child was mangled: %v", content.Security)
	}
}

func TestMessageTerminateRoundtrip(t *testing.T) {
	from := MustNewAddress("alice@example.org/desk")
	to := MustNewAddress("bob@example.org/mobile")

	msg := NewSessionTerminate(from, to, "sid-2", &ReasonElement{
		Reason: ReasonFailedTransport,
		Text:   "all transports exhausted",
	})

	var buff bytes.Buffer
	if err := cboring.Marshal(msg, &buff); err != nil {
		t.Fatal(err)
	}

	restored := new(Message)
	if err := cboring.Unmarshal(restored, &buff); err != nil {
		t.Fatal(err)
	}

	if restored.Reason == nil {
		t.Fatal("the reason was dropped")
	}
	if restored.Reason.Reason != ReasonFailedTransport || restored.Reason.Text != "all transports exhausted" {
		t.Errorf("the reason was mangled: %v", restored.Reason)
	}
}

func TestMessageCheckValid(t *testing.T) {
	from := MustNewAddress("alice@example.org/desk")
	to := MustNewAddress("bob@example.org/mobile")

	msg := NewMessage(ActionSessionInfo, from, to, "sid-3")
	if err := msg.CheckValid(); err != nil {
		t.Errorf("a session-info was refused: %v", err)
	}

	msg.SessionID = ""
	if msg.CheckValid() == nil {
		t.Error("a message without a session id was accepted")
	}

	terminate := NewMessage(ActionSessionTerminate, from, to, "sid-3")
	if terminate.CheckValid() == nil {
		t.Error("a session-terminate without a reason was accepted")
	}
	terminate.Reason = NewReasonElement(ReasonSuccess)
	if err := terminate.CheckValid(); err != nil {
		t.Errorf("a proper session-terminate was refused: %v", err)
	}

	msg = NewMessage("teleport", from, to, "sid-3")
	if msg.CheckValid() == nil {
		t.Error("an unknown action was accepted")
	}
}

func TestContentElementUnknownChild(t *testing.T) {
	content := &ContentElement{
		Creator:   CreatorInitiator,
		Name:      "cont-x",
		Senders:   SendersBoth,
		Transport: &testChildElement{ns: "urn:test:unregistered", payload: "x"},
	}

	var buff bytes.Buffer
	if err := cboring.Marshal(content, &buff); err != nil {
		t.Fatal(err)
	}

	if err := cboring.Unmarshal(new(ContentElement), &buff); err == nil {
		t.Error("a child element of an unregistered namespace was decoded")
	}
}
