// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inband

import (
	"fmt"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Manager creates and revives in-band Transports. It implements both the
// TransportManager and the TransportAdapter interface and is registered
// for both roles.
type Manager struct {
	priority int
}

// NewManager creates an in-band transport Manager. As the slowest
// transport it usually carries the lowest priority.
func NewManager(priority int) *Manager {
	return &Manager{priority: priority}
}

func (manager *Manager) Namespace() string {
	return Namespace
}

func (manager *Manager) Priority() int {
	return manager.priority
}

func (manager *Manager) NewTransportForInitiator(_ *jingle.Content) (jingle.Transport, error) {
	return NewTransport(), nil
}

func (manager *Manager) NewTransportForResponder(_ *jingle.Content, el elements.TransportElement) (jingle.Transport, error) {
	return manager.TransportFromElement(el)
}

func (manager *Manager) TransportFromElement(el elements.TransportElement) (jingle.Transport, error) {
	open, ok := el.(*OpenElement)
	if !ok {
		return nil, fmt.Errorf("in-band transport cannot be revived from %T", el)
	}
	return fromElement(open), nil
}
