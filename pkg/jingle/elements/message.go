// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Message is one protocol request between two endpoints: a mandatory
// action, the session it belongs to, and the content elements affected by
// the action. To and From are the connection-level addressing; Initiator
// and Responder describe the session's parties and may be empty where the
// action does not require them.
type Message struct {
	ID string

	To   Address
	From Address

	Action    Action
	Initiator Address
	Responder Address
	SessionID string

	Contents []ContentElement
	Reason   *ReasonElement
}

// NewMessage creates a Message with a fresh random ID.
func NewMessage(action Action, from, to Address, sessionID string) *Message {
	return &Message{
		ID:        RandomID(),
		To:        to,
		From:      from,
		Action:    action,
		SessionID: sessionID,
	}
}

// NewSessionInitiate builds a session-initiate request.
func NewSessionInitiate(initiator, responder Address, sessionID string, contents []ContentElement) *Message {
	msg := NewMessage(ActionSessionInitiate, initiator, responder, sessionID)
	msg.Initiator = initiator
	msg.Contents = contents
	return msg
}

// NewSessionAccept builds a session-accept request.
func NewSessionAccept(initiator, responder Address, sessionID string, contents []ContentElement) *Message {
	msg := NewMessage(ActionSessionAccept, responder, initiator, sessionID)
	msg.Responder = responder
	msg.Contents = contents
	return msg
}

// NewSessionTerminate builds a session-terminate request. The reason is
// mandatory for this action.
func NewSessionTerminate(from, to Address, sessionID string, reason *ReasonElement) *Message {
	msg := NewMessage(ActionSessionTerminate, from, to, sessionID)
	msg.Reason = reason
	return msg
}

// newContentScoped builds a request whose single content is addressed by
// creator and name, carrying el as its transport part, e.g.,
// transport-replace, transport-accept, transport-reject or transport-info.
func newContentScoped(action Action, from, to Address, sessionID string, creator Creator, name string, el TransportElement) *Message {
	msg := NewMessage(action, from, to, sessionID)
	msg.Contents = []ContentElement{{
		Creator:   creator,
		Name:      name,
		Transport: el,
	}}
	return msg
}

// NewTransportReplace builds a transport-replace request proposing a new
// transport for the named content.
func NewTransportReplace(from, to Address, sessionID string, creator Creator, name string, el TransportElement) *Message {
	return newContentScoped(ActionTransportReplace, from, to, sessionID, creator, name, el)
}

// NewTransportAccept builds a transport-accept reply for a received
// transport-replace.
func NewTransportAccept(from, to Address, sessionID string, creator Creator, name string, el TransportElement) *Message {
	return newContentScoped(ActionTransportAccept, from, to, sessionID, creator, name, el)
}

// NewTransportReject builds a transport-reject reply for a received
// transport-replace.
func NewTransportReject(from, to Address, sessionID string, creator Creator, name string, el TransportElement) *Message {
	return newContentScoped(ActionTransportReject, from, to, sessionID, creator, name, el)
}

// NewTransportInfo builds a transport-info request carrying a
// transport-specific sub-message for the named content.
func NewTransportInfo(from, to Address, sessionID string, creator Creator, name string, el TransportElement) *Message {
	return newContentScoped(ActionTransportInfo, from, to, sessionID, creator, name, el)
}

// NewContentAdd builds a content-add request proposing a new content.
func NewContentAdd(from, to Address, sessionID string, content ContentElement) *Message {
	msg := NewMessage(ActionContentAdd, from, to, sessionID)
	msg.Contents = []ContentElement{content}
	return msg
}

// NewContentAccept builds a content-accept reply for proposed contents.
func NewContentAccept(from, to Address, sessionID string, contents []ContentElement) *Message {
	msg := NewMessage(ActionContentAccept, from, to, sessionID)
	msg.Contents = contents
	return msg
}

// NewContentReject builds a content-reject reply for proposed contents.
func NewContentReject(from, to Address, sessionID string, contents []ContentElement) *Message {
	msg := NewMessage(ActionContentReject, from, to, sessionID)
	msg.Contents = contents
	return msg
}

// CheckValid returns an error if this Message violates the protocol's
// structural requirements.
func (msg *Message) CheckValid() error {
	if err := msg.Action.CheckValid(); err != nil {
		return err
	}

	if msg.SessionID == "" {
		return fmt.Errorf("message misses a session id")
	}

	if msg.Action == ActionSessionTerminate && msg.Reason == nil {
		return fmt.Errorf("session-terminate misses its mandatory reason")
	}

	return nil
}

// MarshalCbor writes this Message's CBOR representation.
func (msg *Message) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(9, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(msg.ID, w); err != nil {
		return err
	}

	addrs := []*Address{&msg.To, &msg.From, &msg.Initiator, &msg.Responder}
	for _, addr := range addrs {
		if err := addr.MarshalCbor(w); err != nil {
			return err
		}
	}

	if err := cboring.WriteTextString(string(msg.Action), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(msg.SessionID, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(msg.Contents)), w); err != nil {
		return err
	}
	for i := range msg.Contents {
		if err := cboring.Marshal(&msg.Contents[i], w); err != nil {
			return fmt.Errorf("marshalling content %d failed: %v", i, err)
		}
	}

	if msg.Reason == nil {
		return cboring.WriteArrayLength(0, w)
	} else if err := cboring.WriteArrayLength(1, w); err != nil {
		return err
	} else {
		return cboring.Marshal(msg.Reason, w)
	}
}

// UnmarshalCbor reads a Message from its CBOR representation.
func (msg *Message) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 9 {
		return fmt.Errorf("Message: wrong array length: %d instead of 9", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		msg.ID = s
	}

	addrs := []*Address{&msg.To, &msg.From, &msg.Initiator, &msg.Responder}
	for _, addr := range addrs {
		if err := addr.UnmarshalCbor(r); err != nil {
			return err
		}
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if action := Action(s); action.CheckValid() != nil {
		return action.CheckValid()
	} else {
		msg.Action = action
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		msg.SessionID = s
	}

	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else {
		msg.Contents = make([]ContentElement, l)
		for i := range msg.Contents {
			if err := cboring.Unmarshal(&msg.Contents[i], r); err != nil {
				return fmt.Errorf("unmarshalling content %d failed: %v", i, err)
			}
		}
	}

	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l == 0 {
		msg.Reason = nil
	} else if l != 1 {
		return fmt.Errorf("Message: wrong reason array length: %d", l)
	} else {
		msg.Reason = new(ReasonElement)
		if err := cboring.Unmarshal(msg.Reason, r); err != nil {
			return fmt.Errorf("unmarshalling reason failed: %v", err)
		}
	}

	return nil
}

func (msg Message) String() string {
	return fmt.Sprintf("Message(%s,%s,%s)", msg.Action, msg.SessionID, msg.From)
}
