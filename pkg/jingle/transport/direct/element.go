// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package direct

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Namespace identifies the direct TCP transport on the wire.
const Namespace = "urn:jingle7:transports:direct:0"

// CandidateElement is one advertised listening address.
type CandidateElement struct {
	ID       string
	Host     string
	Port     uint64
	Priority uint32
}

func (el CandidateElement) hostPort() string {
	return net.JoinHostPort(el.Host, strconv.FormatUint(el.Port, 10))
}

// MarshalCbor writes this CandidateElement's CBOR representation.
func (el *CandidateElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(el.ID, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(el.Host, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(el.Port, w); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(el.Priority), w)
}

// UnmarshalCbor reads a CandidateElement from its CBOR representation.
func (el *CandidateElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("direct candidate: wrong array length: %d instead of 4", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.ID = s
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.Host = s
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if n > 65535 {
		return fmt.Errorf("direct candidate: port %d out of range", n)
	} else {
		el.Port = n
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		el.Priority = uint32(n)
	}

	return nil
}

func (el CandidateElement) String() string {
	return fmt.Sprintf("DirectCandidate(%s,%s,%d)", el.ID, el.hostPort(), el.Priority)
}

// TransportElement is the direct transport's negotiation state: the
// pairing token both connections must present, plus the endpoint's
// candidate addresses.
type TransportElement struct {
	Dest       string
	Candidates []CandidateElement
}

func (el *TransportElement) Namespace() string {
	return Namespace
}

// MarshalCbor writes this TransportElement's CBOR representation.
func (el *TransportElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(el.Dest, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(el.Candidates)), w); err != nil {
		return err
	}
	for i := range el.Candidates {
		if err := cboring.Marshal(&el.Candidates[i], w); err != nil {
			return fmt.Errorf("marshalling candidate %d failed: %v", i, err)
		}
	}

	return nil
}

// UnmarshalCbor reads a TransportElement from its CBOR representation.
func (el *TransportElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("direct transport: wrong array length: %d instead of 2", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.Dest = s
	}

	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else {
		el.Candidates = make([]CandidateElement, l)
		for i := range el.Candidates {
			if err := cboring.Unmarshal(&el.Candidates[i], r); err != nil {
				return fmt.Errorf("unmarshalling candidate %d failed: %v", i, err)
			}
		}
	}

	return nil
}

func (el TransportElement) String() string {
	return fmt.Sprintf("DirectTransport(%s,%d candidates)", el.Dest, len(el.Candidates))
}

func init() {
	elements.GetElementRegistry().RegisterTransport(Namespace, func(r io.Reader) (elements.TransportElement, error) {
		el := new(TransportElement)
		return el, el.UnmarshalCbor(r)
	})
}
