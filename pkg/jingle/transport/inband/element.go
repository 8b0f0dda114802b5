// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inband

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Namespace identifies the in-band transport on the wire.
const Namespace = "urn:jingle7:transports:in-band:0"

// Element kinds, the first field of each marshalled element.
const (
	kindOpen uint64 = iota
	kindData
)

// OpenElement is the in-band transport's negotiation state: the stream id
// and the maximum chunk size this endpoint is willing to handle.
type OpenElement struct {
	StreamID  string
	BlockSize uint64
}

func (el *OpenElement) Namespace() string {
	return Namespace
}

// MarshalCbor writes this OpenElement's CBOR representation.
func (el *OpenElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(kindOpen, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(el.StreamID, w); err != nil {
		return err
	}
	return cboring.WriteUInt(el.BlockSize, w)
}

func (el *OpenElement) unmarshalBody(r io.Reader) error {
	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.StreamID = s
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("in-band open: block size must not be zero")
	} else {
		el.BlockSize = n
	}

	return nil
}

// UnmarshalCbor reads an OpenElement from its CBOR representation.
func (el *OpenElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("in-band open: wrong array length: %d instead of 3", l)
	}

	if kind, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if kind != kindOpen {
		return fmt.Errorf("in-band open: wrong kind %d", kind)
	}

	return el.unmarshalBody(r)
}

func (el OpenElement) String() string {
	return fmt.Sprintf("InbandOpen(%s,%d)", el.StreamID, el.BlockSize)
}

// DataElement is one chunk of the tunnelled byte stream, sent within a
// transport-info message. Final marks the stream's last chunk.
type DataElement struct {
	StreamID string
	Seq      uint64
	Final    bool
	Checksum uint64
	Data     []byte
}

// newDataElement builds a checksummed chunk.
func newDataElement(streamID string, seq uint64, final bool, data []byte) *DataElement {
	return &DataElement{
		StreamID: streamID,
		Seq:      seq,
		Final:    final,
		Checksum: uint64(crc16.ChecksumCCITT(data)),
		Data:     data,
	}
}

func (el *DataElement) Namespace() string {
	return Namespace
}

// checkIntegrity verifies the chunk against its CRC-16 checksum.
func (el *DataElement) checkIntegrity() error {
	if sum := uint64(crc16.ChecksumCCITT(el.Data)); sum != el.Checksum {
		return fmt.Errorf("in-band chunk %d: checksum mismatch: %#x instead of %#x",
			el.Seq, sum, el.Checksum)
	}
	return nil
}

// MarshalCbor writes this DataElement's CBOR representation.
func (el *DataElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(6, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(kindData, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(el.StreamID, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(el.Seq, w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(el.Final, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(el.Checksum, w); err != nil {
		return err
	}
	return cboring.WriteByteString(el.Data, w)
}

func (el *DataElement) unmarshalBody(r io.Reader) error {
	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.StreamID = s
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		el.Seq = n
	}

	if b, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		el.Final = b
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		el.Checksum = n
	}

	if data, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		el.Data = data
	}

	return nil
}

// UnmarshalCbor reads a DataElement from its CBOR representation.
func (el *DataElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 6 {
		return fmt.Errorf("in-band data: wrong array length: %d instead of 6", l)
	}

	if kind, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if kind != kindData {
		return fmt.Errorf("in-band data: wrong kind %d", kind)
	}

	return el.unmarshalBody(r)
}

func (el DataElement) String() string {
	return fmt.Sprintf("InbandData(%s,%d,%d bytes)", el.StreamID, el.Seq, len(el.Data))
}

// DecodeElement reads either an OpenElement or a DataElement, dispatched
// by the kind field.
func DecodeElement(r io.Reader) (elements.TransportElement, error) {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindOpen:
		if l != 3 {
			return nil, fmt.Errorf("in-band open: wrong array length: %d instead of 3", l)
		}
		el := new(OpenElement)
		return el, el.unmarshalBody(r)

	case kindData:
		if l != 6 {
			return nil, fmt.Errorf("in-band data: wrong array length: %d instead of 6", l)
		}
		el := new(DataElement)
		return el, el.unmarshalBody(r)

	default:
		return nil, fmt.Errorf("in-band element: unknown kind %d", kind)
	}
}

func init() {
	elements.GetElementRegistry().RegisterTransport(Namespace, DecodeElement)
}
