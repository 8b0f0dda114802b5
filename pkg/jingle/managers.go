// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "github.com/jingle7/jingle7-go/pkg/jingle/elements"

// A TransportManager creates fresh Transports of its namespace, both for
// locally initiated contents and for transports proposed by the peer in a
// transport-replace.
type TransportManager interface {
	Namespace() string

	// Priority orders transport managers when a replacement transport is
	// chosen; higher priorities are preferred.
	Priority() int

	// NewTransportForInitiator creates a fresh Transport this endpoint
	// proposes for the given content.
	NewTransportForInitiator(content *Content) (Transport, error)

	// NewTransportForResponder creates the local counterpart for a
	// transport the peer proposed with el.
	NewTransportForResponder(content *Content, el elements.TransportElement) (Transport, error)
}

// A DescriptionHandler is notified about inbound proposals carrying its
// description namespace and decides whether to accept them, e.g., by
// asking the user or consulting an auto-accept policy.
type DescriptionHandler interface {
	Namespace() string

	// NotifySessionInitiate is called for an inbound session proposal
	// whose sole content carries this handler's description namespace.
	NotifySessionInitiate(session *Session)

	// NotifyContentAdd is called for an inbound content proposal within an
	// existing session.
	NotifyContentAdd(session *Session, content *Content)
}
