// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// Address identifies one endpoint of a negotiation, formatted as
// "user@host/resource". The resource part distinguishes multiple sessions
// terminals of the same account and is mandatory for session addressing.
type Address struct {
	User     string
	Host     string
	Resource string
}

// NewAddress parses an Address from its "user@host/resource" form.
func NewAddress(s string) (a Address, err error) {
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		err = fmt.Errorf("address %q misses the user part", s)
		return
	}

	slash := strings.IndexByte(s[at+1:], '/')
	if slash < 0 {
		err = fmt.Errorf("address %q misses the resource part", s)
		return
	}
	slash += at + 1

	a = Address{
		User:     s[:at],
		Host:     s[at+1 : slash],
		Resource: s[slash+1:],
	}

	if a.Host == "" || a.Resource == "" {
		err = fmt.Errorf("address %q has an empty host or resource part", s)
		a = Address{}
	}
	return
}

// MustNewAddress returns an Address like NewAddress, but panics on errors.
func MustNewAddress(s string) Address {
	if a, err := NewAddress(s); err != nil {
		panic(err)
	} else {
		return a
	}
}

// IsEmpty returns true for the zero Address.
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Bare returns the "user@host" form without the resource part.
func (a Address) Bare() string {
	return fmt.Sprintf("%s@%s", a.User, a.Host)
}

func (a Address) String() string {
	if a.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("%s@%s/%s", a.User, a.Host, a.Resource)
}

// MarshalCbor writes this Address' CBOR representation.
func (a *Address) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(a.String(), w)
}

// UnmarshalCbor reads an Address from its CBOR representation.
func (a *Address) UnmarshalCbor(r io.Reader) error {
	s, err := cboring.ReadTextString(r)
	if err != nil {
		return err
	}

	if s == "" {
		*a = Address{}
		return nil
	}

	addr, err := NewAddress(s)
	if err != nil {
		return err
	}

	*a = addr
	return nil
}
