// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quict

import (
	"fmt"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Manager creates QUIC transports, both as a registered
// jingle.TransportManager and as the jingle.TransportAdapter reviving
// negotiated transport elements.
type Manager struct {
	listenAddress string
	advertiseHost string
	priority      int
}

// NewManager for QUIC transports. listenAddress is the UDP bind address
// for per-content listening endpoints, e.g. ":0" for ephemeral ports.
// advertiseHost overrides the advertised host if the bind address is not
// reachable by peers; pass "" to advertise the bound address as is.
func NewManager(listenAddress, advertiseHost string, priority int) *Manager {
	return &Manager{
		listenAddress: listenAddress,
		advertiseHost: advertiseHost,
		priority:      priority,
	}
}

func (manager *Manager) Namespace() string {
	return Namespace
}

func (manager *Manager) Priority() int {
	return manager.priority
}

func (manager *Manager) NewTransportForInitiator(_ *jingle.Content) (jingle.Transport, error) {
	return newListenerTransport(manager)
}

func (manager *Manager) NewTransportForResponder(_ *jingle.Content, el elements.TransportElement) (jingle.Transport, error) {
	return manager.TransportFromElement(el)
}

// TransportFromElement revives a dialling Transport from a received
// element, implementing jingle.TransportAdapter.
func (manager *Manager) TransportFromElement(el elements.TransportElement) (jingle.Transport, error) {
	te, ok := el.(*TransportElement)
	if !ok {
		return nil, fmt.Errorf("quict transport: unexpected element %T", el)
	}
	return newDialerTransport(te), nil
}
