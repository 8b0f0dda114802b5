// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Creator is the party which added a content to its session.
type Creator string

const (
	CreatorInitiator Creator = "initiator"
	CreatorResponder Creator = "responder"
)

// CheckValid returns an error for an unknown Creator.
func (creator Creator) CheckValid() error {
	switch creator {
	case CreatorInitiator, CreatorResponder:
		return nil
	default:
		return fmt.Errorf("unknown creator %q", string(creator))
	}
}

// Senders is a content's sending policy: which party is expected to send
// data over the established byte stream.
type Senders string

const (
	SendersNone      Senders = "none"
	SendersInitiator Senders = "initiator"
	SendersResponder Senders = "responder"
	SendersBoth      Senders = "both"
)

// CheckValid returns an error for an unknown Senders policy.
func (senders Senders) CheckValid() error {
	switch senders {
	case SendersNone, SendersInitiator, SendersResponder, SendersBoth:
		return nil
	default:
		return fmt.Errorf("unknown senders %q", string(senders))
	}
}

// ContentElement is the wire representation of one named content within a
// Message: its identity attributes plus the optional polymorphic
// description, transport and security child elements. A ContentElement
// without children is valid and used by actions which only address a
// content by name.
type ContentElement struct {
	Creator     Creator
	Name        string
	Senders     Senders
	Disposition string

	Description DescriptionElement
	Transport   TransportElement
	Security    SecurityElement
}

// marshalChild writes one optional ChildElement as a (namespace, bytes)
// pair, or an empty array for an absent child.
func marshalChild(el ChildElement, w io.Writer) error {
	if el == nil {
		return cboring.WriteArrayLength(0, w)
	}

	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(el.Namespace(), w); err != nil {
		return err
	}

	var buff bytes.Buffer
	if err := el.MarshalCbor(&buff); err != nil {
		return err
	}
	return cboring.WriteByteString(buff.Bytes(), w)
}

// unmarshalChild reads an optional (namespace, bytes) pair and hands the
// bytes to the decode function. An absent child yields an empty namespace.
func unmarshalChild(r io.Reader) (ns string, data []byte, err error) {
	var l uint64
	if l, err = cboring.ReadArrayLength(r); err != nil {
		return
	} else if l == 0 {
		return
	} else if l != 2 {
		err = fmt.Errorf("child element: wrong array length: %d", l)
		return
	}

	if ns, err = cboring.ReadTextString(r); err != nil {
		return
	}
	data, err = cboring.ReadByteString(r)
	return
}

// MarshalCbor writes this ContentElement's CBOR representation.
func (ce *ContentElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(7, w); err != nil {
		return err
	}

	fields := []string{string(ce.Creator), ce.Name, string(ce.Senders), ce.Disposition}
	for _, field := range fields {
		if err := cboring.WriteTextString(field, w); err != nil {
			return err
		}
	}

	if err := marshalChild(ce.Description, w); err != nil {
		return fmt.Errorf("marshalling description failed: %v", err)
	}
	if err := marshalChild(ce.Transport, w); err != nil {
		return fmt.Errorf("marshalling transport failed: %v", err)
	}
	if err := marshalChild(ce.Security, w); err != nil {
		return fmt.Errorf("marshalling security failed: %v", err)
	}

	return nil
}

// UnmarshalCbor reads a ContentElement from its CBOR representation,
// resolving child elements through the singleton ElementRegistry.
func (ce *ContentElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 7 {
		return fmt.Errorf("ContentElement: wrong array length: %d instead of 7", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if creator := Creator(s); creator.CheckValid() != nil {
		return creator.CheckValid()
	} else {
		ce.Creator = creator
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		ce.Name = s
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if senders := Senders(s); senders.CheckValid() != nil {
		return senders.CheckValid()
	} else {
		ce.Senders = senders
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		ce.Disposition = s
	}

	reg := GetElementRegistry()

	if ns, data, err := unmarshalChild(r); err != nil {
		return err
	} else if ns != "" {
		if ce.Description, err = reg.DecodeDescription(ns, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("unmarshalling description failed: %v", err)
		}
	}

	if ns, data, err := unmarshalChild(r); err != nil {
		return err
	} else if ns != "" {
		if ce.Transport, err = reg.DecodeTransport(ns, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("unmarshalling transport failed: %v", err)
		}
	}

	if ns, data, err := unmarshalChild(r); err != nil {
		return err
	} else if ns != "" {
		if ce.Security, err = reg.DecodeSecurity(ns, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("unmarshalling security failed: %v", err)
		}
	}

	return nil
}

func (ce ContentElement) String() string {
	return fmt.Sprintf("ContentElement(%s,%s,%s)", ce.Creator, ce.Name, ce.Senders)
}
