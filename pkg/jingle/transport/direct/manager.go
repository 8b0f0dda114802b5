// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package direct

import (
	"fmt"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Manager creates direct TCP transports, both as a registered
// jingle.TransportManager and as the jingle.TransportAdapter reviving
// negotiated transport elements.
type Manager struct {
	listenAddress     string
	advertiseHost     string
	priority          int
	candidatePriority uint32
}

// NewManager for direct TCP transports. listenAddress is the bind
// address for per-content listening sockets, e.g. ":0" for ephemeral
// ports. advertiseHost overrides the advertised candidate host if the
// bind address is not reachable by peers; pass "" to advertise the
// bound address as is.
func NewManager(listenAddress, advertiseHost string, priority int) *Manager {
	return &Manager{
		listenAddress:     listenAddress,
		advertiseHost:     advertiseHost,
		priority:          priority,
		candidatePriority: 1,
	}
}

func (manager *Manager) Namespace() string {
	return Namespace
}

func (manager *Manager) Priority() int {
	return manager.priority
}

func (manager *Manager) NewTransportForInitiator(_ *jingle.Content) (jingle.Transport, error) {
	return newTransport(manager, "")
}

func (manager *Manager) NewTransportForResponder(_ *jingle.Content, el elements.TransportElement) (jingle.Transport, error) {
	te, ok := el.(*TransportElement)
	if !ok {
		return nil, fmt.Errorf("direct transport: unexpected element %T", el)
	}

	transport, err := newTransport(manager, te.Dest)
	if err != nil {
		return nil, err
	}

	transport.adoptCandidates(te.Candidates)
	return transport, nil
}

// TransportFromElement revives a Transport from a received element,
// implementing jingle.TransportAdapter.
func (manager *Manager) TransportFromElement(el elements.TransportElement) (jingle.Transport, error) {
	return manager.NewTransportForResponder(nil, el)
}
