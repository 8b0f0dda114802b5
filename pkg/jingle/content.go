// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Content is one negotiated unit within a Session: a Description saying
// what is exchanged, a Transport establishing the byte stream, and an
// optional Security wrapping it. A Content also tracks the transport
// replacement state: at most one replacement may be in flight, and failed
// transport namespaces are blacklisted for this content.
type Content struct {
	creator     elements.Creator
	name        string
	senders     elements.Senders
	disposition string

	parent *Session

	description Description
	security    Security

	// replaceMutex guards transport, pendingReplacingTransport and
	// transportBlacklist. The single pendingReplacingTransport slot
	// serializes transport replacements.
	replaceMutex              sync.Mutex
	transport                 Transport
	pendingReplacingTransport Transport
	transportBlacklist        map[string]struct{}
}

// NewContent creates an empty Content with a fresh random name. The
// description, transport and security parts are attached afterwards.
func NewContent(creator elements.Creator, senders elements.Senders) *Content {
	return &Content{
		creator:            creator,
		name:               "cont-" + elements.RandomID(),
		senders:            senders,
		transportBlacklist: make(map[string]struct{}),
	}
}

// contentFromElement revives a Content from its wire element, resolving
// the children through manager's adapter registries. Children with an
// unregistered namespace are left unset; the callers decide whether this
// dooms the negotiation.
func contentFromElement(manager *Manager, el elements.ContentElement) (*Content, error) {
	content := &Content{
		creator:            el.Creator,
		name:               el.Name,
		senders:            el.Senders,
		disposition:        el.Disposition,
		transportBlacklist: make(map[string]struct{}),
	}

	if el.Description != nil {
		if adapter := manager.DescriptionAdapter(el.Description.Namespace()); adapter == nil {
			log.WithFields(log.Fields{
				"content":   content.name,
				"namespace": el.Description.Namespace(),
			}).Warn("No description adapter registered for inbound content")
		} else if description, err := adapter.DescriptionFromElement(el.Description); err != nil {
			return nil, fmt.Errorf("reviving description of content %s failed: %w", el.Name, err)
		} else {
			content.SetDescription(description)
		}
	}

	if el.Transport != nil {
		if adapter := manager.TransportAdapter(el.Transport.Namespace()); adapter == nil {
			log.WithFields(log.Fields{
				"content":   content.name,
				"namespace": el.Transport.Namespace(),
			}).Warn("No transport adapter registered for inbound content")
		} else if transport, err := adapter.TransportFromElement(el.Transport); err != nil {
			return nil, fmt.Errorf("reviving transport of content %s failed: %w", el.Name, err)
		} else {
			content.SetTransport(transport)
		}
	}

	if el.Security != nil {
		if adapter := manager.SecurityAdapter(el.Security.Namespace()); adapter == nil {
			log.WithFields(log.Fields{
				"content":   content.name,
				"namespace": el.Security.Namespace(),
			}).Warn("No security adapter registered for inbound content")
		} else if security, err := adapter.SecurityFromElement(el.Security); err != nil {
			return nil, fmt.Errorf("reviving security of content %s failed: %w", el.Name, err)
		} else {
			content.SetSecurity(security)
		}
	}

	return content, nil
}

func (content *Content) Creator() elements.Creator {
	return content.creator
}

func (content *Content) Name() string {
	return content.name
}

func (content *Content) Senders() elements.Senders {
	return content.senders
}

func (content *Content) Disposition() string {
	return content.disposition
}

// Session returns the Session this Content belongs to.
func (content *Content) Session() *Session {
	return content.parent
}

// setParent attaches this Content to its Session; the first attachment
// wins.
func (content *Content) setParent(session *Session) {
	if content.parent == nil {
		content.parent = session
	}
}

func (content *Content) Description() Description {
	return content.description
}

// SetDescription attaches description and re-parents it to this Content.
func (content *Content) SetDescription(description Description) {
	content.description = description
	description.SetParent(content)
}

func (content *Content) Security() Security {
	return content.security
}

// SetSecurity attaches security and re-parents it to this Content.
func (content *Content) SetSecurity(security Security) {
	content.security = security
	security.SetParent(content)
}

func (content *Content) Transport() Transport {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	return content.transport
}

// SetTransport attaches transport and re-parents it to this Content.
func (content *Content) SetTransport(transport Transport) {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	content.transport = transport
	transport.SetParent(content)
}

// IsSending returns true if this endpoint sends on the byte stream,
// following the content's senders policy and our session role.
func (content *Content) IsSending() bool {
	switch content.senders {
	case elements.SendersBoth:
		return true
	case elements.SendersInitiator:
		return content.parent.IsInitiator()
	case elements.SendersResponder:
		return content.parent.IsResponder()
	default:
		return false
	}
}

// IsReceiving returns true if this endpoint receives on the byte stream.
func (content *Content) IsReceiving() bool {
	switch content.senders {
	case elements.SendersBoth:
		return true
	case elements.SendersInitiator:
		return content.parent.IsResponder()
	case elements.SendersResponder:
		return content.parent.IsInitiator()
	default:
		return false
	}
}

// Element returns the wire representation of this Content.
func (content *Content) Element() elements.ContentElement {
	el := elements.ContentElement{
		Creator:     content.creator,
		Name:        content.name,
		Senders:     content.senders,
		Disposition: content.disposition,
	}

	if content.description != nil {
		el.Description = content.description.Element()
	}
	if transport := content.Transport(); transport != nil {
		el.Transport = transport.Element()
	}
	if content.security != nil {
		el.Security = content.security.Element()
	}

	return el
}

// handleRequest dispatches a content-scoped request. The Session already
// verified that msg addresses exactly this Content.
func (content *Content) handleRequest(msg *elements.Message, conn Connection) *elements.Response {
	switch msg.Action {
	case elements.ActionContentModify, elements.ActionDescriptionInfo, elements.ActionSecurityInfo:
		return elements.ErrorOf(msg, elements.ConditionFeatureNotImplemented)

	case elements.ActionTransportAccept:
		return content.handleTransportAccept(msg, conn)

	case elements.ActionTransportInfo:
		return content.Transport().HandleTransportInfo(soleContentElement(msg).Transport, msg)

	case elements.ActionTransportReject:
		return content.handleTransportReject(msg, conn)

	case elements.ActionTransportReplace:
		return content.handleTransportReplace(msg, conn)

	default:
		panic(fmt.Sprintf("content %s: request with unhandled action %s", content.name, msg.Action))
	}
}

// handleContentAccept starts the byte stream establishment after the peer
// accepted this previously proposed Content.
func (content *Content) handleContentAccept(conn Connection) {
	content.start(conn)
}

// handleSessionAccept merges the peer's transport view from its
// session-accept and starts the byte stream establishment.
func (content *Content) handleSessionAccept(msg *elements.Message, conn Connection) *elements.Response {
	var el *elements.ContentElement
	for i := range msg.Contents {
		if msg.Contents[i].Name == content.name {
			el = &msg.Contents[i]
			break
		}
	}
	if el == nil {
		panic(fmt.Sprintf("content %s: session-accept does not carry this content", content.name))
	}

	if err := content.Transport().HandleSessionAccept(el.Transport, conn); err != nil {
		log.WithFields(log.Fields{
			"content": content.name,
			"error":   err,
		}).Warn("Merging the peer's session-accept transport state failed")
		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	content.start(conn)
	return elements.ResultOf(msg)
}

// start prepares transport and security and establishes the byte stream in
// the direction our senders policy demands. A content neither sending nor
// receiving assumes the receiving role.
func (content *Content) start(conn Connection) {
	transport := content.Transport()
	transport.Prepare(conn)

	if content.security != nil {
		content.security.Prepare(conn, content.parent.Peer())
	}

	go func() {
		switch {
		case content.IsReceiving():
			transport.EstablishIncomingBytestream(conn, content, content.parent)
		case content.IsSending():
			transport.EstablishOutgoingBytestream(conn, content, content.parent)
		default:
			log.WithFields(log.Fields{
				"content": content.name,
				"senders": content.senders,
			}).Debug("Content is neither sending nor receiving, assuming the receiving role")
			transport.EstablishIncomingBytestream(conn, content, content.parent)
		}
	}()
}

// OnTransportReady hands the established byte stream onwards: through the
// security layer if one is set, otherwise directly to the description.
func (content *Content) OnTransportReady(session BytestreamSession) {
	if session == nil {
		panic(fmt.Sprintf("content %s: transport reported a nil bytestream", content.name))
	}

	if content.security != nil {
		if content.IsReceiving() {
			content.security.DecryptIncomingBytestream(session, content)
		} else if content.IsSending() {
			content.security.EncryptOutgoingBytestream(session, content)
		}
		return
	}

	if content.description != nil {
		content.description.OnBytestreamReady(session)
	}
}

// OnTransportFailed blacklists the failed transport for this content; the
// initiator then proposes a replacement.
func (content *Content) OnTransportFailed(err error) {
	log.WithFields(log.Fields{
		"content":   content.name,
		"transport": content.Transport().Namespace(),
		"error":     err,
	}).Warn("Transport failed to establish its byte stream")

	content.blacklist(content.Transport().Namespace())

	if content.parent.IsInitiator() {
		if err := content.replaceTransport(content.parent.Manager().Connection()); err != nil {
			log.WithFields(log.Fields{
				"content": content.name,
				"error":   err,
			}).Warn("Proposing a replacement transport failed")
		}
	}
}

// OnSecurityReady hands the wrapped byte stream to the description.
func (content *Content) OnSecurityReady(session BytestreamSession) {
	if content.description != nil {
		content.description.OnBytestreamReady(session)
	}
}

// OnSecurityFailed logs the security layer's failure. The byte stream
// stays unwrapped and carries no data; the description notices the
// absence on its own.
func (content *Content) OnSecurityFailed(err error) {
	log.WithFields(log.Fields{
		"content": content.name,
		"error":   err,
	}).Error("Security layer failed to wrap the byte stream")
}

// OnContentFinished reports this content's application logic as
// successfully completed.
func (content *Content) OnContentFinished() {
	content.parent.onContentFinished(content)
}

// OnContentCancel reports this content's application logic as cancelled.
func (content *Content) OnContentCancel() {
	content.parent.onContentCancel(content)
}

// blacklist marks a transport namespace as unusable for this content.
func (content *Content) blacklist(namespace string) {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	content.transportBlacklist[namespace] = struct{}{}
}

// isBlacklisted checks a transport namespace against this content's
// blacklist.
func (content *Content) isBlacklisted(namespace string) bool {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	_, ok := content.transportBlacklist[namespace]
	return ok
}

// blacklistSnapshot copies this content's blacklist.
func (content *Content) blacklistSnapshot() map[string]struct{} {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	snapshot := make(map[string]struct{}, len(content.transportBlacklist))
	for namespace := range content.transportBlacklist {
		snapshot[namespace] = struct{}{}
	}
	return snapshot
}

// replaceTransport blacklists the current transport, picks the best
// remaining transport manager and proposes its transport to the peer. If
// no usable transport remains, the session is terminated with a
// failed-transport reason.
func (content *Content) replaceTransport(conn Connection) error {
	session := content.parent
	manager := session.Manager()

	content.replaceMutex.Lock()

	if content.pendingReplacingTransport != nil {
		content.replaceMutex.Unlock()
		panic(fmt.Sprintf("content %s: a transport replacement is already pending", content.name))
	}

	content.transportBlacklist[content.transport.Namespace()] = struct{}{}

	blacklist := make(map[string]struct{}, len(content.transportBlacklist))
	for namespace := range content.transportBlacklist {
		blacklist[namespace] = struct{}{}
	}

	tm := manager.BestAvailableTransportManager(blacklist)
	if tm == nil {
		content.replaceMutex.Unlock()

		log.WithFields(log.Fields{
			"content": content.name,
			"session": session.ID(),
		}).Warn("No usable transport remains, terminating the session")

		session.Terminate(elements.ReasonFailedTransport, "all transports exhausted")
		return nil
	}

	transport, err := tm.NewTransportForInitiator(content)
	if err != nil {
		content.replaceMutex.Unlock()
		return fmt.Errorf("creating a replacement transport failed: %w", err)
	}

	content.pendingReplacingTransport = transport
	content.replaceMutex.Unlock()

	msg := elements.NewTransportReplace(
		session.LocalAddress(), session.Peer(), session.ID(),
		content.creator, content.name, transport.Element())

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		content.clearPendingReplacement()
		return fmt.Errorf("sending transport-replace failed: %w", err)
	} else if resp.IsError() {
		// A tie-break reply means the peer's concurrent replacement wins;
		// freeing the slot lets its transport-replace through.
		content.clearPendingReplacement()
		return fmt.Errorf("transport-replace was answered with %v", resp.Condition)
	}

	return nil
}

// clearPendingReplacement frees the replacement slot after the outbound
// transport-replace failed, unless a concurrent handler resolved it first.
func (content *Content) clearPendingReplacement() {
	content.replaceMutex.Lock()
	defer content.replaceMutex.Unlock()

	content.pendingReplacingTransport = nil
}

// handleTransportReplace processes the peer's proposal of a new transport.
// A replacement this endpoint itself has in flight wins the tie-break; an
// unusable proposal is answered with an asynchronous transport-reject.
func (content *Content) handleTransportReplace(msg *elements.Message, conn Connection) *elements.Response {
	session := content.parent
	manager := session.Manager()

	content.replaceMutex.Lock()
	if content.pendingReplacingTransport != nil {
		content.replaceMutex.Unlock()

		log.WithFields(log.Fields{
			"content": content.name,
			"session": session.ID(),
		}).Debug("Concurrent transport-replace, answering tie-break")

		return elements.ErrorOf(msg, elements.ConditionTieBreak)
	}
	content.replaceMutex.Unlock()

	el := soleContentElement(msg)
	if el.Transport == nil {
		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}
	namespace := el.Transport.Namespace()

	tm := manager.TransportManager(namespace)
	if tm == nil || content.isBlacklisted(namespace) {
		go content.sendTransportDecision(conn, elements.NewTransportReject(
			session.LocalAddress(), session.Peer(), session.ID(),
			content.creator, content.name, el.Transport))

		return elements.ResultOf(msg)
	}

	transport, err := tm.NewTransportForResponder(content, el.Transport)
	if err != nil {
		log.WithFields(log.Fields{
			"content":   content.name,
			"namespace": namespace,
			"error":     err,
		}).Warn("Creating the responder side of a proposed transport failed")

		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	content.replaceMutex.Lock()
	content.transportBlacklist[content.transport.Namespace()] = struct{}{}
	content.transport = transport
	transport.SetParent(content)
	content.replaceMutex.Unlock()

	go func() {
		content.sendTransportDecision(conn, elements.NewTransportAccept(
			session.LocalAddress(), session.Peer(), session.ID(),
			content.creator, content.name, transport.Element()))

		content.start(conn)
	}()

	return elements.ResultOf(msg)
}

// handleTransportAccept installs the pending replacement transport after
// the peer accepted it and starts the byte stream establishment.
func (content *Content) handleTransportAccept(msg *elements.Message, conn Connection) *elements.Response {
	content.replaceMutex.Lock()
	if content.pendingReplacingTransport == nil {
		content.replaceMutex.Unlock()

		log.WithFields(log.Fields{
			"content": content.name,
			"session": content.parent.ID(),
		}).Warn("Received a transport-accept without a pending transport-replace")

		return elements.ErrorOf(msg, elements.ConditionOutOfOrder)
	}

	content.transport = content.pendingReplacingTransport
	content.transport.SetParent(content)
	content.pendingReplacingTransport = nil
	content.replaceMutex.Unlock()

	content.start(conn)
	return elements.ResultOf(msg)
}

// handleTransportReject blacklists the rejected pending transport and
// proposes the next best one.
func (content *Content) handleTransportReject(msg *elements.Message, conn Connection) *elements.Response {
	content.replaceMutex.Lock()
	if content.pendingReplacingTransport == nil {
		content.replaceMutex.Unlock()
		panic(fmt.Sprintf("content %s: transport-reject without a pending transport-replace", content.name))
	}

	content.transportBlacklist[content.pendingReplacingTransport.Namespace()] = struct{}{}
	content.pendingReplacingTransport = nil
	content.replaceMutex.Unlock()

	go func() {
		if err := content.replaceTransport(conn); err != nil {
			log.WithFields(log.Fields{
				"content": content.name,
				"error":   err,
			}).Warn("Proposing the next transport after a rejection failed")
		}
	}()

	return elements.ResultOf(msg)
}

// sendTransportDecision delivers a transport-accept or transport-reject,
// logging a failed delivery.
func (content *Content) sendTransportDecision(conn Connection, msg *elements.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if resp, err := conn.SendRequest(ctx, msg); err != nil {
		log.WithFields(log.Fields{
			"content": content.name,
			"action":  msg.Action,
			"error":   err,
		}).Warn("Delivering a transport decision failed")
	} else if resp.IsError() {
		log.WithFields(log.Fields{
			"content":   content.name,
			"action":    msg.Action,
			"condition": resp.Condition,
		}).Warn("A transport decision was answered with an error")
	}
}

// soleContentElement returns the single content element of a
// content-scoped request.
func soleContentElement(msg *elements.Message) *elements.ContentElement {
	if len(msg.Contents) != 1 {
		panic(fmt.Sprintf("request %s carries %d contents instead of one", msg.Action, len(msg.Contents)))
	}
	return &msg.Contents[0]
}

func (content *Content) String() string {
	return fmt.Sprintf("Content(%s,%s,%s)", content.creator, content.name, content.senders)
}
