// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// requestTimeout bounds requests the negotiation sends on its own behalf,
// e.g., transport-replace proposals or session-terminate notifications.
const requestTimeout = 30 * time.Second

// SessionState is the lifecycle state of a Session. Sessions move from
// fresh over pending to active and finally into one of the two terminal
// states, ended or cancelled. A terminal state is never left again.
type SessionState int

const (
	SessionFresh SessionState = iota
	SessionPending
	SessionActive
	SessionCancelled
	SessionEnded
)

func (state SessionState) String() string {
	switch state {
	case SessionFresh:
		return "fresh"
	case SessionPending:
		return "pending"
	case SessionActive:
		return "active"
	case SessionCancelled:
		return "cancelled"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for the two final states.
func (state SessionState) IsTerminal() bool {
	return state == SessionCancelled || state == SessionEnded
}

// A SessionListener is informed about a Session's lifecycle.
type SessionListener interface {
	// SessionStateUpdated is called after each state change.
	SessionStateUpdated(oldState, newState SessionState)

	// SessionAccepted is called once both parties agreed on the session.
	SessionAccepted()

	// SessionTerminated is called once with the session's final reason.
	SessionTerminated(reason *elements.ReasonElement)
}

// Session is one negotiation between an initiator and a responder,
// identified by its session id. It holds the accepted contents plus the
// contents proposed to the peer but not yet answered.
type Session struct {
	manager *Manager

	initiator elements.Address
	responder elements.Address
	role      Role
	sessionID string

	// contents maps content names to accepted *Content, proposedContents
	// to locally proposed but unanswered *Content. A content lives in at
	// most one of the two maps.
	contents         sync.Map
	proposedContents sync.Map

	stateMutex sync.Mutex
	state      SessionState

	listenerMutex sync.Mutex
	listeners     []SessionListener
}

func newSession(manager *Manager, initiator, responder elements.Address, role Role, sessionID string) *Session {
	return &Session{
		manager:   manager,
		initiator: initiator,
		responder: responder,
		role:      role,
		sessionID: sessionID,
		state:     SessionFresh,
	}
}

func (session *Session) Manager() *Manager {
	return session.manager
}

func (session *Session) ID() string {
	return session.sessionID
}

func (session *Session) Initiator() elements.Address {
	return session.initiator
}

func (session *Session) Responder() elements.Address {
	return session.responder
}

func (session *Session) Role() Role {
	return session.role
}

func (session *Session) IsInitiator() bool {
	return session.role == RoleInitiator
}

func (session *Session) IsResponder() bool {
	return session.role == RoleResponder
}

// LocalAddress returns our own address within this session.
func (session *Session) LocalAddress() elements.Address {
	if session.IsInitiator() {
		return session.initiator
	}
	return session.responder
}

// Peer returns the other party's address.
func (session *Session) Peer() elements.Address {
	if session.IsInitiator() {
		return session.responder
	}
	return session.initiator
}

// State returns the session's current lifecycle state.
func (session *Session) State() SessionState {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()

	return session.state
}

// updateState moves the session into target and informs the listeners.
// Repeated updates to the current state are no-ops; a terminal state is
// never left. It reports whether the state actually changed.
func (session *Session) updateState(target SessionState) bool {
	session.stateMutex.Lock()
	oldState := session.state

	if oldState == target {
		session.stateMutex.Unlock()
		return false
	}
	if oldState.IsTerminal() {
		session.stateMutex.Unlock()

		log.WithFields(log.Fields{
			"session": session.sessionID,
			"state":   oldState,
			"target":  target,
		}).Warn("Refusing to leave a terminal session state")
		return false
	}

	session.state = target
	session.stateMutex.Unlock()

	for _, listener := range session.listenersSnapshot() {
		listener.SessionStateUpdated(oldState, target)
	}
	return true
}

// AddListener registers listener for this session's lifecycle events.
func (session *Session) AddListener(listener SessionListener) {
	session.listenerMutex.Lock()
	defer session.listenerMutex.Unlock()

	session.listeners = append(session.listeners, listener)
}

func (session *Session) listenersSnapshot() []SessionListener {
	session.listenerMutex.Lock()
	defer session.listenerMutex.Unlock()

	listeners := make([]SessionListener, len(session.listeners))
	copy(listeners, session.listeners)
	return listeners
}

func (session *Session) notifyAccepted() {
	for _, listener := range session.listenersSnapshot() {
		listener.SessionAccepted()
	}
}

func (session *Session) notifyTerminated(reason *elements.ReasonElement) {
	for _, listener := range session.listenersSnapshot() {
		listener.SessionTerminated(reason)
	}
}

// AddContent adds an accepted content to this session.
func (session *Session) AddContent(content *Content) {
	content.setParent(session)
	session.contents.Store(content.Name(), content)
}

// Content returns the accepted content of the given name, or nil.
func (session *Session) Content(name string) *Content {
	if content, ok := session.contents.Load(name); ok {
		return content.(*Content)
	}
	return nil
}

// Contents returns a snapshot of the accepted contents.
func (session *Session) Contents() []*Content {
	var contents []*Content
	session.contents.Range(func(_, value interface{}) bool {
		contents = append(contents, value.(*Content))
		return true
	})
	return contents
}

func (session *Session) contentCount() (n int) {
	session.contents.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return
}

func (session *Session) contentElements() []elements.ContentElement {
	var els []elements.ContentElement
	for _, content := range session.Contents() {
		els = append(els, content.Element())
	}
	return els
}

// SendInitiate proposes this session to the responder. It may only be
// called by the initiator on a fresh session; on success the session
// becomes pending.
func (session *Session) SendInitiate(ctx context.Context, conn Connection) error {
	if !session.IsInitiator() {
		return fmt.Errorf("session %s: only the initiator may send session-initiate", session.sessionID)
	}
	if state := session.State(); state != SessionFresh {
		return fmt.Errorf("session %s: session-initiate requires a fresh session, not %v", session.sessionID, state)
	}

	msg := elements.NewSessionInitiate(
		session.initiator, session.responder, session.sessionID, session.contentElements())

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		return err
	} else if resp.IsError() {
		return fmt.Errorf("session-initiate was answered with %v", resp.Condition)
	}

	session.updateState(SessionPending)
	return nil
}

// SendAccept accepts a pending inbound session. It may only be called by
// the responder; on success the session becomes active and the byte
// stream establishment of all contents starts.
func (session *Session) SendAccept(ctx context.Context, conn Connection) error {
	if !session.IsResponder() {
		return fmt.Errorf("session %s: only the responder may send session-accept", session.sessionID)
	}
	if state := session.State(); state != SessionPending {
		return fmt.Errorf("session %s: session-accept requires a pending session, not %v", session.sessionID, state)
	}

	msg := elements.NewSessionAccept(
		session.initiator, session.responder, session.sessionID, session.contentElements())

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		return err
	} else if resp.IsError() {
		return fmt.Errorf("session-accept was answered with %v", resp.Condition)
	}

	session.updateState(SessionActive)
	session.notifyAccepted()

	for _, content := range session.Contents() {
		content.start(conn)
	}
	return nil
}

// ProposeContent proposes an additional content to the peer within this
// session. The content stays proposed until the peer's content-accept or
// content-reject arrives.
func (session *Session) ProposeContent(ctx context.Context, conn Connection, content *Content) error {
	content.setParent(session)
	session.proposedContents.Store(content.Name(), content)

	msg := elements.NewContentAdd(
		session.LocalAddress(), session.Peer(), session.sessionID, content.Element())

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		session.proposedContents.Delete(content.Name())
		return err
	} else if resp.IsError() {
		session.proposedContents.Delete(content.Name())
		return fmt.Errorf("content-add was answered with %v", resp.Condition)
	}
	return nil
}

// AcceptContent accepts a content the peer proposed with content-add and
// starts its byte stream establishment.
func (session *Session) AcceptContent(ctx context.Context, conn Connection, content *Content) error {
	content.setParent(session)

	msg := elements.NewContentAccept(
		session.LocalAddress(), session.Peer(), session.sessionID,
		[]elements.ContentElement{content.Element()})

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		return err
	} else if resp.IsError() {
		return fmt.Errorf("content-accept was answered with %v", resp.Condition)
	}

	session.contents.Store(content.Name(), content)
	content.start(conn)
	return nil
}

// RejectContent rejects a content the peer proposed with content-add.
func (session *Session) RejectContent(ctx context.Context, conn Connection, content *Content) error {
	msg := elements.NewContentReject(
		session.LocalAddress(), session.Peer(), session.sessionID,
		[]elements.ContentElement{content.Element()})

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		return err
	} else if resp.IsError() {
		return fmt.Errorf("content-reject was answered with %v", resp.Condition)
	}
	return nil
}

// Terminate finishes this session with the given reason: the state moves
// into its terminal value, the contents are informed and cleaned up, the
// peer is notified best-effort, and the session is deregistered from its
// Manager.
func (session *Session) Terminate(reason elements.Reason, text string) {
	target := SessionEnded
	if reason == elements.ReasonCancel {
		target = SessionCancelled
	}

	if !session.updateState(target) {
		return
	}

	reasonEl := &elements.ReasonElement{Reason: reason, Text: text}

	for _, content := range session.Contents() {
		if description := content.Description(); description != nil {
			description.HandleContentTerminate(reason)
		}
		if transport := content.Transport(); transport != nil {
			transport.Cleanup()
		}
	}

	session.notifyTerminated(reasonEl)

	msg := elements.NewSessionTerminate(
		session.LocalAddress(), session.Peer(), session.sessionID, reasonEl)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if resp, err := session.manager.Connection().SendRequest(ctx, msg); err != nil {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"reason":  reason,
			"error":   err,
		}).Warn("Delivering the session-terminate failed")
	} else if resp.IsError() {
		log.WithFields(log.Fields{
			"session":   session.sessionID,
			"reason":    reason,
			"condition": resp.Condition,
		}).Warn("The session-terminate was answered with an error")
	}

	session.manager.removeSession(session)
}

// HandleRequest dispatches an inbound request addressed to this session.
func (session *Session) HandleRequest(msg *elements.Message) *elements.Response {
	conn := session.manager.Connection()

	switch msg.Action {
	case elements.ActionSessionInitiate:
		return session.handleSessionInitiate(msg)

	case elements.ActionSessionAccept:
		return session.handleSessionAccept(msg, conn)

	case elements.ActionSessionTerminate:
		return session.handleSessionTerminate(msg)

	case elements.ActionSessionInfo:
		// A session-level ping; nothing to do beyond the acknowledgement.
		return elements.ResultOf(msg)

	case elements.ActionContentAccept:
		return session.handleContentAccept(msg, conn)

	case elements.ActionContentAdd:
		return session.handleContentAdd(msg)

	case elements.ActionContentReject:
		return session.handleContentReject(msg)

	case elements.ActionContentRemove:
		return session.handleContentRemove(msg)

	default:
		if msg.Action.IsContentScoped() {
			return session.soleAffectedContent(msg).handleRequest(msg, conn)
		}
		panic(fmt.Sprintf("session %s: request with unhandled action %s", session.sessionID, msg.Action))
	}
}

// handleSessionInitiate inspects a freshly proposed inbound session. A
// proposal whose description or transport we cannot serve is acknowledged
// and then terminated; otherwise the registered description handler
// decides about acceptance.
func (session *Session) handleSessionInitiate(msg *elements.Message) *elements.Response {
	if len(msg.Contents) != 1 {
		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	content := session.Contents()[0]

	if content.Description() == nil {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"peer":    session.Peer(),
		}).Info("Inbound session proposes an unsupported application, terminating")

		go session.Terminate(elements.ReasonUnsupportedApplications, "")
		return elements.ResultOf(msg)
	}

	if content.Transport() == nil {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"peer":    session.Peer(),
		}).Info("Inbound session proposes an unsupported transport, terminating")

		go session.Terminate(elements.ReasonUnsupportedTransports, "")
		return elements.ResultOf(msg)
	}

	handler := session.manager.DescriptionHandler(content.Description().Namespace())
	if handler == nil {
		log.WithFields(log.Fields{
			"session":   session.sessionID,
			"namespace": content.Description().Namespace(),
		}).Info("No handler registered for the proposed application, terminating")

		go session.Terminate(elements.ReasonUnsupportedApplications, "")
		return elements.ResultOf(msg)
	}

	go handler.NotifySessionInitiate(session)
	return elements.ResultOf(msg)
}

// handleSessionAccept activates the session after the peer accepted it. A
// content whose negotiated security layer is missing from the acceptance
// terminates the session with a security-error.
func (session *Session) handleSessionAccept(msg *elements.Message, conn Connection) *elements.Response {
	if state := session.State(); state != SessionPending {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"state":   state,
		}).Warn("Received a session-accept outside the pending state")

		return elements.ErrorOf(msg, elements.ConditionOutOfOrder)
	}

	for _, content := range session.Contents() {
		if content.Security() == nil {
			continue
		}

		secured := false
		for i := range msg.Contents {
			if msg.Contents[i].Name == content.Name() && msg.Contents[i].Security != nil {
				secured = true
				break
			}
		}
		if !secured {
			log.WithFields(log.Fields{
				"session": session.sessionID,
				"content": content.Name(),
			}).Error("The session-accept dropped a negotiated security layer, terminating")

			go session.Terminate(elements.ReasonSecurityError, "acceptance omits the security layer")
			return elements.ResultOf(msg)
		}
	}

	session.updateState(SessionActive)
	session.notifyAccepted()

	for _, content := range session.Contents() {
		if resp := content.handleSessionAccept(msg, conn); resp.IsError() {
			return resp
		}
	}

	return elements.ResultOf(msg)
}

// handleSessionTerminate finishes the session on the peer's behalf.
func (session *Session) handleSessionTerminate(msg *elements.Message) *elements.Response {
	if msg.Reason == nil {
		panic(fmt.Sprintf("session %s: session-terminate without its mandatory reason", session.sessionID))
	}

	target := SessionEnded
	if msg.Reason.Reason == elements.ReasonCancel {
		target = SessionCancelled
	}
	session.updateState(target)

	for _, content := range session.Contents() {
		if description := content.Description(); description != nil {
			description.HandleContentTerminate(msg.Reason.Reason)
		}
		if transport := content.Transport(); transport != nil {
			transport.Cleanup()
		}
	}

	session.notifyTerminated(msg.Reason)
	session.manager.removeSession(session)

	return elements.ResultOf(msg)
}

// handleContentAccept moves locally proposed contents into the session
// after the peer accepted them.
func (session *Session) handleContentAccept(msg *elements.Message, conn Connection) *elements.Response {
	for i := range msg.Contents {
		name := msg.Contents[i].Name

		proposed, ok := session.proposedContents.LoadAndDelete(name)
		if !ok {
			panic(fmt.Sprintf("session %s: content-accept for unproposed content %s", session.sessionID, name))
		}

		content := proposed.(*Content)
		session.contents.Store(name, content)

		go content.handleContentAccept(conn)
	}

	return elements.ResultOf(msg)
}

// handleContentAdd revives the proposed content and asks the registered
// description handler for a decision.
func (session *Session) handleContentAdd(msg *elements.Message) *elements.Response {
	el := soleContentElement(msg)

	content, err := contentFromElement(session.manager, *el)
	if err != nil {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"error":   err,
		}).Warn("Reviving a proposed content failed")

		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}
	content.setParent(session)

	if content.Description() == nil {
		panic(fmt.Sprintf("session %s: content-add %s without a supported description", session.sessionID, content.Name()))
	}

	handler := session.manager.DescriptionHandler(content.Description().Namespace())
	if handler == nil {
		panic(fmt.Sprintf("session %s: no handler for content-add namespace %s", session.sessionID, content.Description().Namespace()))
	}

	go handler.NotifyContentAdd(session, content)
	return elements.ResultOf(msg)
}

// handleContentReject drops locally proposed contents the peer rejected.
func (session *Session) handleContentReject(msg *elements.Message) *elements.Response {
	for i := range msg.Contents {
		name := msg.Contents[i].Name

		proposed, ok := session.proposedContents.LoadAndDelete(name)
		if !ok {
			log.WithFields(log.Fields{
				"session": session.sessionID,
				"content": name,
			}).Warn("Received a content-reject for an unproposed content")
			continue
		}

		if description := proposed.(*Content).Description(); description != nil {
			description.HandleContentTerminate(elements.ReasonDecline)
		}
	}

	return elements.ResultOf(msg)
}

// handleContentRemove answers feature-not-implemented: removing single
// contents on the peer's behalf is not part of the protocol surface yet.
// The local state is untouched.
func (session *Session) handleContentRemove(msg *elements.Message) *elements.Response {
	log.WithFields(log.Fields{
		"session": session.sessionID,
	}).Debug("Refusing a content-remove, not implemented")

	return elements.ErrorOf(msg, elements.ConditionFeatureNotImplemented)
}

// onContentFinished removes a successfully finished content; finishing the
// last content ends the whole session with a success reason.
func (session *Session) onContentFinished(content *Content) {
	if _, ok := session.contents.LoadAndDelete(content.Name()); !ok {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"content": content.Name(),
		}).Warn("An unknown content reported itself as finished")
		return
	}

	if transport := content.Transport(); transport != nil {
		transport.Cleanup()
	}

	if session.contentCount() == 0 {
		session.Terminate(elements.ReasonSuccess, "")
	}
}

// onContentCancel removes a cancelled content; cancelling the last content
// cancels the whole session. Otherwise a best-effort content-remove informs
// the peer, which may well refuse it as not implemented.
func (session *Session) onContentCancel(content *Content) {
	if _, ok := session.contents.LoadAndDelete(content.Name()); !ok {
		log.WithFields(log.Fields{
			"session": session.sessionID,
			"content": content.Name(),
		}).Warn("An unknown content reported itself as cancelled")
		return
	}

	if transport := content.Transport(); transport != nil {
		transport.Cleanup()
	}

	if session.contentCount() == 0 {
		session.Terminate(elements.ReasonCancel, "")
		return
	}

	msg := elements.NewMessage(
		elements.ActionContentRemove, session.LocalAddress(), session.Peer(), session.sessionID)
	msg.Contents = []elements.ContentElement{content.Element()}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if resp, err := session.manager.Connection().SendRequest(ctx, msg); err != nil {
			log.WithFields(log.Fields{
				"session": session.sessionID,
				"content": content.Name(),
				"error":   err,
			}).Warn("Delivering the content-remove failed")
		} else if resp.IsError() && resp.Condition != elements.ConditionFeatureNotImplemented {
			log.WithFields(log.Fields{
				"session":   session.sessionID,
				"content":   content.Name(),
				"condition": resp.Condition,
			}).Warn("The content-remove was answered with an error")
		}
	}()
}

// soleAffectedContent resolves the single content a content-scoped request
// addresses.
func (session *Session) soleAffectedContent(msg *elements.Message) *Content {
	el := soleContentElement(msg)

	content := session.Content(el.Name)
	if content == nil {
		panic(fmt.Sprintf("session %s: request %s addresses unknown content %s", session.sessionID, msg.Action, el.Name))
	}
	return content
}

func (session *Session) String() string {
	return fmt.Sprintf("Session(%s,%s,%s)", session.sessionID, session.role, session.Peer())
}
