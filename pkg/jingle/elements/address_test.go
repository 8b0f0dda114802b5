// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"bytes"
	"testing"

	"github.com/dtn7/cboring"
)

func TestNewAddress(t *testing.T) {
	tests := []struct {
		input string
		valid bool
		addr  Address
	}{
		{"alice@example.org/desk", true, Address{"alice", "example.org", "desk"}},
		{"bob@example.org/mobile-23", true, Address{"bob", "example.org", "mobile-23"}},
		{"carol@host/res/with/slashes", true, Address{"carol", "host", "res/with/slashes"}},
		{"alice@example.org", false, Address{}},
		{"@example.org/desk", false, Address{}},
		{"alice@/desk", false, Address{}},
		{"alice@example.org/", false, Address{}},
		{"", false, Address{}},
	}

	for _, test := range tests {
		addr, err := NewAddress(test.input)
		if (err == nil) != test.valid {
			t.Errorf("parsing %q: valid = %t, err = %v", test.input, test.valid, err)
			continue
		}
		if err == nil && addr != test.addr {
			t.Errorf("parsing %q: expected %v, got %v", test.input, test.addr, addr)
		}
	}
}

func TestAddressString(t *testing.T) {
	addr := MustNewAddress("alice@example.org/desk")

	if addr.String() != "alice@example.org/desk" {
		t.Errorf("unexpected string form %q", addr.String())
	}
	if addr.Bare() != "alice@example.org" {
		t.Errorf("unexpected bare form %q", addr.Bare())
	}
	if addr.IsEmpty() {
		t.Error("a parsed address must not be empty")
	}
	if !(Address{}).IsEmpty() {
		t.Error("the zero address must be empty")
	}
}

func TestAddressCbor(t *testing.T) {
	for _, addr := range []Address{
		MustNewAddress("alice@example.org/desk"),
		{},
	} {
		var buff bytes.Buffer
		if err := cboring.Marshal(&addr, &buff); err != nil {
			t.Fatal(err)
		}

		var restored Address
		if err := cboring.Unmarshal(&restored, &buff); err != nil {
			t.Fatal(err)
		}
		if restored != addr {
			t.Errorf("expected %v, got %v", addr, restored)
		}
	}
}
