// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package direct

import (
	"sync"

	"github.com/jingle7/jingle7-go/pkg/jingle"
)

// Candidate is one dialable peer address, implementing
// jingle.TransportCandidate.
type Candidate struct {
	el CandidateElement

	mutex  sync.Mutex
	parent jingle.Transport
}

func newCandidate(el CandidateElement) *Candidate {
	return &Candidate{el: el}
}

func (candidate *Candidate) Priority() uint32 {
	return candidate.el.Priority
}

// Equal considers two candidates the same if they dial the same address.
func (candidate *Candidate) Equal(other jingle.TransportCandidate) bool {
	oc, ok := other.(*Candidate)
	return ok && oc.el.Host == candidate.el.Host && oc.el.Port == candidate.el.Port
}

func (candidate *Candidate) AttachTo(transport jingle.Transport) {
	candidate.mutex.Lock()
	defer candidate.mutex.Unlock()

	candidate.parent = transport
}

func (candidate *Candidate) String() string {
	return candidate.el.String()
}
