// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Reason describes why a session or content was terminated.
type Reason string

const (
	ReasonSuccess                 Reason = "success"
	ReasonCancel                  Reason = "cancel"
	ReasonBusy                    Reason = "busy"
	ReasonDecline                 Reason = "decline"
	ReasonFailedTransport         Reason = "failed-transport"
	ReasonFailedApplication       Reason = "failed-application"
	ReasonSecurityError           Reason = "security-error"
	ReasonUnsupportedApplications Reason = "unsupported-applications"
	ReasonUnsupportedTransports   Reason = "unsupported-transports"
)

var reasons = map[Reason]struct{}{
	ReasonSuccess:                 {},
	ReasonCancel:                  {},
	ReasonBusy:                    {},
	ReasonDecline:                 {},
	ReasonFailedTransport:         {},
	ReasonFailedApplication:       {},
	ReasonSecurityError:           {},
	ReasonUnsupportedApplications: {},
	ReasonUnsupportedTransports:   {},
}

// CheckValid returns an error for an unknown Reason.
func (reason Reason) CheckValid() error {
	if _, ok := reasons[reason]; !ok {
		return fmt.Errorf("unknown reason %q", string(reason))
	}
	return nil
}

func (reason Reason) String() string {
	return string(reason)
}

// ReasonElement is a Reason together with an optional human-readable text,
// attached to session-terminate Messages.
type ReasonElement struct {
	Reason Reason
	Text   string
}

// NewReasonElement wraps a Reason without additional text.
func NewReasonElement(reason Reason) *ReasonElement {
	return &ReasonElement{Reason: reason}
}

// MarshalCbor writes this ReasonElement's CBOR representation.
func (re *ReasonElement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(string(re.Reason), w); err != nil {
		return err
	}

	return cboring.WriteTextString(re.Text, w)
}

// UnmarshalCbor reads a ReasonElement from its CBOR representation.
func (re *ReasonElement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("ReasonElement: wrong array length: %d instead of 2", l)
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if reason := Reason(s); reason.CheckValid() != nil {
		return reason.CheckValid()
	} else {
		re.Reason = reason
	}

	if s, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		re.Text = s
	}

	return nil
}

func (re ReasonElement) String() string {
	if re.Text == "" {
		return string(re.Reason)
	}
	return fmt.Sprintf("%s (%s)", re.Reason, re.Text)
}
