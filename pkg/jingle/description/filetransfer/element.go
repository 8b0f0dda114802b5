// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filetransfer

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Namespace identifies the file transfer description on the wire.
const Namespace = "urn:jingle7:apps:file-transfer:0"

// DescriptionElement announces the offered file: its name, the size and
// SHA-256 digest of the uncompressed bytes, a media type hint, and
// whether the byte stream is xz compressed.
type DescriptionElement struct {
	Name       string
	Size       uint64
	MediaType  string
	Hash       []byte
	Compressed bool
}

func (el *DescriptionElement) Namespace() string {
	return Namespace
}

// MarshalCbor writes this DescriptionElement's CBOR representation.
func (el *DescriptionElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(el.Name, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(el.Size, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(el.MediaType, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(el.Hash, w); err != nil {
		return err
	}
	return cboring.WriteBoolean(el.Compressed, w)
}

// UnmarshalCbor reads a DescriptionElement from its CBOR representation.
func (el *DescriptionElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 5 {
		return fmt.Errorf("file transfer description: wrong array length: %d instead of 5", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.Name = s
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		el.Size = n
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		el.MediaType = s
	}

	if b, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(b) != sha256.Size {
		return fmt.Errorf("file transfer description: digest length is %d, not required %d", len(b), sha256.Size)
	} else {
		el.Hash = b
	}

	if b, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		el.Compressed = b
	}

	return nil
}

func (el DescriptionElement) String() string {
	return fmt.Sprintf("FileTransfer(%s,%d bytes)", el.Name, el.Size)
}

func init() {
	elements.GetElementRegistry().RegisterDescription(Namespace, func(r io.Reader) (elements.DescriptionElement, error) {
		el := new(DescriptionElement)
		return el, el.UnmarshalCbor(r)
	})
}
