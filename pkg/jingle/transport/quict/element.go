// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quict

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Namespace identifies the QUIC transport on the wire.
const Namespace = "urn:jingle7:transports:quict:0"

// TransportElement is the QUIC transport's negotiation state: the
// listening endpoint of the transport's creator and the pairing token
// the dialer must present on the first stream.
type TransportElement struct {
	Host  string
	Port  uint64
	Token string
}

func (el *TransportElement) Namespace() string {
	return Namespace
}

func (el *TransportElement) hostPort() string {
	return net.JoinHostPort(el.Host, strconv.FormatUint(el.Port, 10))
}

// MarshalCbor writes this TransportElement's CBOR representation.
func (el *TransportElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(el.Host, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(el.Port, w); err != nil {
		return err
	}
	return cboring.WriteTextString(el.Token, w)
}

// UnmarshalCbor reads a TransportElement from its CBOR representation.
func (el *TransportElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("quict transport: wrong array length: %d instead of 3", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.Host = s
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if n > 65535 {
		return fmt.Errorf("quict transport: port %d out of range", n)
	} else {
		el.Port = n
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.Token = s
	}

	return nil
}

func (el TransportElement) String() string {
	return fmt.Sprintf("QuictTransport(%s)", el.hostPort())
}

func init() {
	elements.GetElementRegistry().RegisterTransport(Namespace, func(r io.Reader) (elements.TransportElement, error) {
		el := new(TransportElement)
		return el, el.UnmarshalCbor(r)
	})
}
