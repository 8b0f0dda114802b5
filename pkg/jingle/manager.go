// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// sessionKey identifies a Session: sessions are unique per peer address
// and session id, two peers may use the same id independently.
type sessionKey struct {
	peer      string
	sessionID string
}

// Manager supervises all sessions running over one Connection. It is the
// Connection's RequestHandler and routes each inbound request to the
// addressed Session, creating one for inbound session-initiates. Its
// registries resolve the wire namespaces of descriptions, transports and
// security layers to their local implementations.
type Manager struct {
	connection Connection

	sessions sync.Map

	registryMutex       sync.RWMutex
	descriptionAdapters map[string]DescriptionAdapter
	transportAdapters   map[string]TransportAdapter
	securityAdapters    map[string]SecurityAdapter
	transportManagers   map[string]TransportManager
	descriptionHandlers map[string]DescriptionHandler

	observerMutex sync.Mutex
	observers     []SessionObserver
}

// SessionObserver is called for every session this Manager starts
// supervising, locally created or inbound.
type SessionObserver func(session *Session)

// NewManager creates a Manager for conn and registers itself as conn's
// RequestHandler.
func NewManager(conn Connection) *Manager {
	manager := &Manager{
		connection:          conn,
		descriptionAdapters: make(map[string]DescriptionAdapter),
		transportAdapters:   make(map[string]TransportAdapter),
		securityAdapters:    make(map[string]SecurityAdapter),
		transportManagers:   make(map[string]TransportManager),
		descriptionHandlers: make(map[string]DescriptionHandler),
	}

	conn.RegisterRequestHandler(manager)
	return manager
}

// Connection returns the signalling channel this Manager supervises.
func (manager *Manager) Connection() Connection {
	return manager.connection
}

// RegisterDescriptionAdapter registers adapter under its namespace.
func (manager *Manager) RegisterDescriptionAdapter(adapter DescriptionAdapter) {
	manager.registryMutex.Lock()
	defer manager.registryMutex.Unlock()

	manager.descriptionAdapters[adapter.Namespace()] = adapter
}

// RegisterTransportAdapter registers adapter under its namespace.
func (manager *Manager) RegisterTransportAdapter(adapter TransportAdapter) {
	manager.registryMutex.Lock()
	defer manager.registryMutex.Unlock()

	manager.transportAdapters[adapter.Namespace()] = adapter
}

// RegisterSecurityAdapter registers adapter under its namespace.
func (manager *Manager) RegisterSecurityAdapter(adapter SecurityAdapter) {
	manager.registryMutex.Lock()
	defer manager.registryMutex.Unlock()

	manager.securityAdapters[adapter.Namespace()] = adapter
}

// RegisterTransportManager registers tm under its namespace.
func (manager *Manager) RegisterTransportManager(tm TransportManager) {
	manager.registryMutex.Lock()
	defer manager.registryMutex.Unlock()

	manager.transportManagers[tm.Namespace()] = tm
}

// RegisterDescriptionHandler registers handler under its namespace.
func (manager *Manager) RegisterDescriptionHandler(handler DescriptionHandler) {
	manager.registryMutex.Lock()
	defer manager.registryMutex.Unlock()

	manager.descriptionHandlers[handler.Namespace()] = handler
}

// DescriptionAdapter returns the adapter for a namespace, or nil.
func (manager *Manager) DescriptionAdapter(namespace string) DescriptionAdapter {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	return manager.descriptionAdapters[namespace]
}

// TransportAdapter returns the adapter for a namespace, or nil.
func (manager *Manager) TransportAdapter(namespace string) TransportAdapter {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	return manager.transportAdapters[namespace]
}

// SecurityAdapter returns the adapter for a namespace, or nil.
func (manager *Manager) SecurityAdapter(namespace string) SecurityAdapter {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	return manager.securityAdapters[namespace]
}

// TransportManager returns the transport manager for a namespace, or nil.
func (manager *Manager) TransportManager(namespace string) TransportManager {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	return manager.transportManagers[namespace]
}

// DescriptionHandler returns the handler for a namespace, or nil.
func (manager *Manager) DescriptionHandler(namespace string) DescriptionHandler {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	return manager.descriptionHandlers[namespace]
}

// BestAvailableTransportManager returns the highest prioritized transport
// manager whose namespace is not blacklisted, or nil if none remains.
func (manager *Manager) BestAvailableTransportManager(blacklist map[string]struct{}) TransportManager {
	manager.registryMutex.RLock()
	defer manager.registryMutex.RUnlock()

	var best TransportManager
	for namespace, tm := range manager.transportManagers {
		if _, ok := blacklist[namespace]; ok {
			continue
		}
		if best == nil || tm.Priority() > best.Priority() {
			best = tm
		}
	}
	return best
}

// NewSession creates a fresh outgoing session towards peer and registers
// it. The caller attaches contents and calls SendInitiate.
func (manager *Manager) NewSession(peer elements.Address) *Session {
	session := newSession(
		manager, manager.connection.LocalAddress(), peer, RoleInitiator, elements.RandomID())

	manager.registerSession(session)
	return session
}

// newIncomingSession builds the responder-side session for an inbound
// session-initiate.
func (manager *Manager) newIncomingSession(msg *elements.Message) (*Session, error) {
	initiator := msg.Initiator
	if initiator.IsEmpty() {
		initiator = msg.From
	}

	session := newSession(
		manager, initiator, manager.connection.LocalAddress(), RoleResponder, msg.SessionID)

	for i := range msg.Contents {
		content, err := contentFromElement(manager, msg.Contents[i])
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", msg.SessionID, err)
		}
		session.AddContent(content)
	}

	session.updateState(SessionPending)
	return session, nil
}

// RegisterSessionObserver adds an observer for newly supervised sessions.
func (manager *Manager) RegisterSessionObserver(observer SessionObserver) {
	manager.observerMutex.Lock()
	defer manager.observerMutex.Unlock()

	manager.observers = append(manager.observers, observer)
}

func (manager *Manager) registerSession(session *Session) {
	manager.sessions.Store(
		sessionKey{peer: session.Peer().String(), sessionID: session.ID()}, session)

	manager.observerMutex.Lock()
	observers := make([]SessionObserver, len(manager.observers))
	copy(observers, manager.observers)
	manager.observerMutex.Unlock()

	for _, observer := range observers {
		observer(session)
	}
}

func (manager *Manager) removeSession(session *Session) {
	manager.sessions.Delete(
		sessionKey{peer: session.Peer().String(), sessionID: session.ID()})
}

// Session returns the registered session for a peer and session id, or
// nil.
func (manager *Manager) Session(peer elements.Address, sessionID string) *Session {
	if session, ok := manager.sessions.Load(sessionKey{peer: peer.String(), sessionID: sessionID}); ok {
		return session.(*Session)
	}
	return nil
}

// Sessions returns a snapshot of all registered sessions.
func (manager *Manager) Sessions() []*Session {
	var sessions []*Session
	manager.sessions.Range(func(_, value interface{}) bool {
		sessions = append(sessions, value.(*Session))
		return true
	})
	return sessions
}

// HandleMessage implements the RequestHandler: structurally broken
// requests are refused, session-initiates spawn a new session, everything
// else is routed to the addressed session.
func (manager *Manager) HandleMessage(msg *elements.Message) *elements.Response {
	if err := msg.CheckValid(); err != nil {
		log.WithFields(log.Fields{
			"message": msg,
			"error":   err,
		}).Warn("Refusing a structurally broken request")

		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	if msg.Action == elements.ActionSessionInitiate {
		if manager.Session(msg.From, msg.SessionID) != nil {
			log.WithFields(log.Fields{
				"session": msg.SessionID,
				"peer":    msg.From,
			}).Warn("Refusing a session-initiate for an already known session")

			return elements.ErrorOf(msg, elements.ConditionBadRequest)
		}

		session, err := manager.newIncomingSession(msg)
		if err != nil {
			log.WithFields(log.Fields{
				"session": msg.SessionID,
				"peer":    msg.From,
				"error":   err,
			}).Warn("Building the session for an inbound session-initiate failed")

			return elements.ErrorOf(msg, elements.ConditionBadRequest)
		}

		manager.registerSession(session)
		return session.HandleRequest(msg)
	}

	session := manager.Session(msg.From, msg.SessionID)
	if session == nil {
		log.WithFields(log.Fields{
			"session": msg.SessionID,
			"peer":    msg.From,
			"action":  msg.Action,
		}).Warn("Received a request for an unknown session")

		return elements.ErrorOf(msg, elements.ConditionItemNotFound)
	}

	return session.HandleRequest(msg)
}

// Close terminates all remaining sessions and closes the underlying
// Connection.
func (manager *Manager) Close() error {
	for _, session := range manager.Sessions() {
		session.Terminate(elements.ReasonCancel, "endpoint shutting down")
	}

	return manager.connection.Close()
}
