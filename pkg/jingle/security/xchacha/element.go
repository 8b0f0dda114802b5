// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xchacha

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Namespace identifies the XChaCha20-Poly1305 security layer on the wire.
const Namespace = "urn:jingle7:security:xchacha:0"

// saltLength is the length of the key derivation salt in bytes.
const saltLength = 32

// SecurityElement carries the salt deriving this content's stream key
// from the endpoints' pre-shared key.
type SecurityElement struct {
	Salt []byte
}

func (el *SecurityElement) Namespace() string {
	return Namespace
}

// MarshalCbor writes this SecurityElement's CBOR representation.
func (el *SecurityElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(1, w); err != nil {
		return err
	}
	return cboring.WriteByteString(el.Salt, w)
}

// UnmarshalCbor reads a SecurityElement from its CBOR representation.
func (el *SecurityElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 1 {
		return fmt.Errorf("xchacha security: wrong array length: %d instead of 1", l)
	}

	if b, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(b) != saltLength {
		return fmt.Errorf("xchacha security: salt length is %d, not required %d", len(b), saltLength)
	} else {
		el.Salt = b
	}

	return nil
}

func (el SecurityElement) String() string {
	return fmt.Sprintf("XChaChaSecurity(%x)", el.Salt[:4])
}

func init() {
	elements.GetElementRegistry().RegisterSecurity(Namespace, func(r io.Reader) (elements.SecurityElement, error) {
		el := new(SecurityElement)
		return el, el.UnmarshalCbor(r)
	})
}
