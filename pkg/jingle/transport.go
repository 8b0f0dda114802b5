// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"sync"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Transport establishes the byte stream of a Content. One side establishes
// the incoming and the other the outgoing direction; which side does what
// follows from the content's senders policy.
type Transport interface {
	// Namespace identifies this transport type on the wire.
	Namespace() string

	// Element returns the wire representation of this transport's current
	// negotiation state.
	Element() elements.TransportElement

	// SetParent attaches this transport to the Content using it.
	SetParent(content *Content)

	// Prepare is called once before the bytestream establishment starts,
	// e.g., to register listeners or start advertising candidates.
	Prepare(conn Connection)

	// EstablishIncomingBytestream establishes the receiving side of the
	// byte stream and reports the outcome to the callback.
	EstablishIncomingBytestream(conn Connection, callback TransportCallback, session *Session)

	// EstablishOutgoingBytestream establishes the sending side of the
	// byte stream and reports the outcome to the callback.
	EstablishOutgoingBytestream(conn Connection, callback TransportCallback, session *Session)

	// HandleSessionAccept merges the peer's view of this transport, as
	// carried in its session-accept, into the local state.
	HandleSessionAccept(el elements.TransportElement, conn Connection) error

	// HandleTransportInfo processes a transport-specific sub-message.
	HandleTransportInfo(info elements.TransportElement, msg *elements.Message) *elements.Response

	// Cleanup releases resources held for the establishment, e.g.,
	// listening sockets. It must be safe to call more than once.
	Cleanup()
}

// TransportCandidate is one possible connection path a transport offers,
// e.g., an address it listens on.
type TransportCandidate interface {
	// Priority orders candidates; higher priorities are tried first.
	Priority() uint32

	// Equal reports whether other denotes the same path as this candidate.
	Equal(other TransportCandidate) bool

	// AttachTo re-parents this candidate to the transport adopting it.
	AttachTo(transport Transport)
}

// CandidateSet holds a transport's candidates, ordered by descending
// priority. Transports embed a CandidateSet; it is safe for concurrent use.
type CandidateSet struct {
	mutex      sync.Mutex
	candidates []TransportCandidate
}

// AddCandidate inserts candidate into this set, keeping the descending
// priority order. The candidate is re-parented to owner even when it
// equals an already known one; known duplicates are not inserted again.
func (cs *CandidateSet) AddCandidate(owner Transport, candidate TransportCandidate) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	candidate.AttachTo(owner)

	for _, known := range cs.candidates {
		if known.Equal(candidate) {
			return
		}
	}

	pos := len(cs.candidates)
	for i, known := range cs.candidates {
		if candidate.Priority() > known.Priority() {
			pos = i
			break
		}
	}

	cs.candidates = append(cs.candidates, nil)
	copy(cs.candidates[pos+1:], cs.candidates[pos:])
	cs.candidates[pos] = candidate
}

// Candidates returns a snapshot of this set, best candidate first.
func (cs *CandidateSet) Candidates() []TransportCandidate {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	candidates := make([]TransportCandidate, len(cs.candidates))
	copy(candidates, cs.candidates)
	return candidates
}
