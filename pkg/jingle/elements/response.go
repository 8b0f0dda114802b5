// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Condition describes a protocol-level error reply. Protocol errors are
// recoverable by design: they inform the peer without corrupting local
// session state.
type Condition string

const (
	// ConditionFeatureNotImplemented answers requests for protocol surface
	// this implementation deliberately leaves unimplemented.
	ConditionFeatureNotImplemented Condition = "feature-not-implemented"

	// ConditionOutOfOrder answers requests arriving in an unexpected
	// protocol state, e.g., a transport-accept without a pending replace.
	ConditionOutOfOrder Condition = "out-of-order"

	// ConditionTieBreak resolves both parties proposing a transport
	// replacement for the same content simultaneously.
	ConditionTieBreak Condition = "tie-break"

	// ConditionItemNotFound answers requests for unknown sessions.
	ConditionItemNotFound Condition = "item-not-found"

	// ConditionBadRequest answers structurally broken requests.
	ConditionBadRequest Condition = "bad-request"
)

// Response is the correlated reply for a Message: either a plain
// acknowledgement or an error condition.
type Response struct {
	ID        string
	Condition Condition
}

// ResultOf builds the acknowledging Response for a Message.
func ResultOf(msg *Message) *Response {
	return &Response{ID: msg.ID}
}

// ErrorOf builds an error Response with the given Condition for a Message.
func ErrorOf(msg *Message, condition Condition) *Response {
	return &Response{ID: msg.ID, Condition: condition}
}

// IsError returns true if this Response carries an error Condition.
func (resp *Response) IsError() bool {
	return resp.Condition != ""
}

// MarshalCbor writes this Response's CBOR representation.
func (resp *Response) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(resp.ID, w); err != nil {
		return err
	}
	return cboring.WriteTextString(string(resp.Condition), w)
}

// UnmarshalCbor reads a Response from its CBOR representation.
func (resp *Response) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("Response: wrong array length: %d instead of 2", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		resp.ID = s
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		resp.Condition = Condition(s)
	}

	return nil
}

func (resp Response) String() string {
	if resp.IsError() {
		return fmt.Sprintf("Response(%s,%s)", resp.ID, resp.Condition)
	}
	return fmt.Sprintf("Response(%s,result)", resp.ID)
}
