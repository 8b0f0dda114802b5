// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// pipeConnection is an in-memory Connection: requests are handed directly
// to the linked peer's RequestHandler.
type pipeConnection struct {
	address elements.Address
	peer    *pipeConnection

	mutex   sync.Mutex
	handler RequestHandler
	sent    []*elements.Message
	closed  bool
}

// newConnectionPair links two pipeConnections for the given addresses.
func newConnectionPair(a, b elements.Address) (*pipeConnection, *pipeConnection) {
	connA := &pipeConnection{address: a}
	connB := &pipeConnection{address: b}
	connA.peer = connB
	connB.peer = connA
	return connA, connB
}

func (conn *pipeConnection) SendRequest(_ context.Context, msg *elements.Message) (*elements.Response, error) {
	conn.mutex.Lock()
	if conn.closed {
		conn.mutex.Unlock()
		return nil, fmt.Errorf("connection %v is closed", conn.address)
	}
	conn.sent = append(conn.sent, msg)
	conn.mutex.Unlock()

	conn.peer.mutex.Lock()
	handler := conn.peer.handler
	conn.peer.mutex.Unlock()

	if handler == nil {
		return elements.ErrorOf(msg, elements.ConditionItemNotFound), nil
	}
	return handler.HandleMessage(msg), nil
}

func (conn *pipeConnection) SendResponse(_ *elements.Response) error {
	return nil
}

func (conn *pipeConnection) RegisterRequestHandler(handler RequestHandler) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	conn.handler = handler
}

func (conn *pipeConnection) LocalAddress() elements.Address {
	return conn.address
}

func (conn *pipeConnection) Close() error {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	conn.closed = true
	return nil
}

func (conn *pipeConnection) sentMessages() []*elements.Message {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	msgs := make([]*elements.Message, len(conn.sent))
	copy(msgs, conn.sent)
	return msgs
}

// resultHandler acknowledges every request. It stands in for a peer whose
// reactions are irrelevant for the test.
type resultHandler struct{}

func (resultHandler) HandleMessage(msg *elements.Message) *elements.Response {
	return elements.ResultOf(msg)
}

// mockChildElement is the wire element of the mock description, transport
// and security types.
type mockChildElement struct {
	ns string
}

func (el *mockChildElement) Namespace() string {
	return el.ns
}

func (el *mockChildElement) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(el.ns, w)
}

func (el *mockChildElement) UnmarshalCbor(r io.Reader) error {
	s, err := cboring.ReadTextString(r)
	el.ns = s
	return err
}

// mockBytestream is an in-memory BytestreamSession.
type mockBytestream struct {
	bytes.Buffer
	closed bool
}

func (bs *mockBytestream) Close() error {
	bs.closed = true
	return nil
}

// mockEstablishment records one bytestream establishment request against a
// mockTransport.
type mockEstablishment struct {
	direction string
	callback  TransportCallback
	session   *Session
}

// mockTransport is a scriptable Transport. By default each establishment
// is only recorded on the established channel; onEstablish overrides this.
type mockTransport struct {
	CandidateSet

	ns string

	mutex     sync.Mutex
	parent    *Content
	prepared  bool
	cleanedUp bool

	acceptedElements []elements.TransportElement
	sessionAcceptErr error

	onEstablish func(direction string, conn Connection, callback TransportCallback, session *Session)
	established chan mockEstablishment
}

func newMockTransport(ns string) *mockTransport {
	return &mockTransport{
		ns:          ns,
		established: make(chan mockEstablishment, 8),
	}
}

func (mt *mockTransport) Namespace() string {
	return mt.ns
}

func (mt *mockTransport) Element() elements.TransportElement {
	return &mockChildElement{ns: mt.ns}
}

func (mt *mockTransport) SetParent(content *Content) {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	mt.parent = content
}

func (mt *mockTransport) Prepare(_ Connection) {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	mt.prepared = true
}

func (mt *mockTransport) establish(direction string, conn Connection, callback TransportCallback, session *Session) {
	mt.mutex.Lock()
	onEstablish := mt.onEstablish
	mt.mutex.Unlock()

	if onEstablish != nil {
		onEstablish(direction, conn, callback, session)
		return
	}
	mt.established <- mockEstablishment{direction: direction, callback: callback, session: session}
}

func (mt *mockTransport) EstablishIncomingBytestream(conn Connection, callback TransportCallback, session *Session) {
	mt.establish("in", conn, callback, session)
}

func (mt *mockTransport) EstablishOutgoingBytestream(conn Connection, callback TransportCallback, session *Session) {
	mt.establish("out", conn, callback, session)
}

func (mt *mockTransport) HandleSessionAccept(el elements.TransportElement, _ Connection) error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	mt.acceptedElements = append(mt.acceptedElements, el)
	return mt.sessionAcceptErr
}

func (mt *mockTransport) HandleTransportInfo(_ elements.TransportElement, msg *elements.Message) *elements.Response {
	return elements.ResultOf(msg)
}

func (mt *mockTransport) Cleanup() {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	mt.cleanedUp = true
}

// mockCandidate is a TransportCandidate distinguished by an id.
type mockCandidate struct {
	id       string
	priority uint32

	mutex  sync.Mutex
	parent Transport
}

func (mc *mockCandidate) Priority() uint32 {
	return mc.priority
}

func (mc *mockCandidate) Equal(other TransportCandidate) bool {
	mo, ok := other.(*mockCandidate)
	return ok && mo.id == mc.id
}

func (mc *mockCandidate) AttachTo(transport Transport) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.parent = transport
}

// mockTransportManager creates mockTransports of its namespace.
type mockTransportManager struct {
	ns       string
	priority int

	mutex   sync.Mutex
	created []*mockTransport
}

func newMockTransportManager(ns string, priority int) *mockTransportManager {
	return &mockTransportManager{ns: ns, priority: priority}
}

func (mtm *mockTransportManager) Namespace() string {
	return mtm.ns
}

func (mtm *mockTransportManager) Priority() int {
	return mtm.priority
}

func (mtm *mockTransportManager) newTransport() *mockTransport {
	mt := newMockTransport(mtm.ns)

	mtm.mutex.Lock()
	mtm.created = append(mtm.created, mt)
	mtm.mutex.Unlock()

	return mt
}

func (mtm *mockTransportManager) NewTransportForInitiator(_ *Content) (Transport, error) {
	return mtm.newTransport(), nil
}

func (mtm *mockTransportManager) NewTransportForResponder(_ *Content, _ elements.TransportElement) (Transport, error) {
	return mtm.newTransport(), nil
}

// mockDescription records the byte streams and termination reasons it
// sees. Completing a byte stream is scripted through onBytestream.
type mockDescription struct {
	ns string

	mutex  sync.Mutex
	parent *Content

	onBytestream func(content *Content, session BytestreamSession)
	streams      chan BytestreamSession
	terminations chan elements.Reason
}

func newMockDescription(ns string) *mockDescription {
	return &mockDescription{
		ns:           ns,
		streams:      make(chan BytestreamSession, 8),
		terminations: make(chan elements.Reason, 8),
	}
}

func (md *mockDescription) Namespace() string {
	return md.ns
}

func (md *mockDescription) Element() elements.DescriptionElement {
	return &mockChildElement{ns: md.ns}
}

func (md *mockDescription) SetParent(content *Content) {
	md.mutex.Lock()
	defer md.mutex.Unlock()

	md.parent = content
}

func (md *mockDescription) OnBytestreamReady(session BytestreamSession) {
	md.mutex.Lock()
	onBytestream := md.onBytestream
	parent := md.parent
	md.mutex.Unlock()

	md.streams <- session
	if onBytestream != nil {
		onBytestream(parent, session)
	}
}

func (md *mockDescription) HandleDescriptionInfo(_ elements.DescriptionElement, msg *elements.Message) *elements.Response {
	return elements.ResultOf(msg)
}

func (md *mockDescription) HandleContentTerminate(reason elements.Reason) {
	md.terminations <- reason
}

// mockSecurity wraps byte streams without modification.
type mockSecurity struct {
	ns string

	mutex    sync.Mutex
	parent   *Content
	prepared bool

	failWith error
}

func newMockSecurity(ns string) *mockSecurity {
	return &mockSecurity{ns: ns}
}

func (ms *mockSecurity) Namespace() string {
	return ms.ns
}

func (ms *mockSecurity) Element() elements.SecurityElement {
	return &mockChildElement{ns: ms.ns}
}

func (ms *mockSecurity) SetParent(content *Content) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.parent = content
}

func (ms *mockSecurity) Prepare(_ Connection, _ elements.Address) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.prepared = true
}

func (ms *mockSecurity) wrap(session BytestreamSession, callback SecurityCallback) {
	if ms.failWith != nil {
		callback.OnSecurityFailed(ms.failWith)
		return
	}
	callback.OnSecurityReady(session)
}

func (ms *mockSecurity) DecryptIncomingBytestream(session BytestreamSession, callback SecurityCallback) {
	ms.wrap(session, callback)
}

func (ms *mockSecurity) EncryptOutgoingBytestream(session BytestreamSession, callback SecurityCallback) {
	ms.wrap(session, callback)
}

func (ms *mockSecurity) HandleSecurityInfo(_ elements.SecurityElement, msg *elements.Message) *elements.Response {
	return elements.ResultOf(msg)
}

// mockDescriptionAdapter revives mockDescriptions and records them.
type mockDescriptionAdapter struct {
	ns string

	mutex   sync.Mutex
	revived []*mockDescription
}

func (mda *mockDescriptionAdapter) Namespace() string {
	return mda.ns
}

func (mda *mockDescriptionAdapter) DescriptionFromElement(el elements.DescriptionElement) (Description, error) {
	md := newMockDescription(el.Namespace())

	mda.mutex.Lock()
	mda.revived = append(mda.revived, md)
	mda.mutex.Unlock()

	return md, nil
}

// mockTransportAdapter revives mockTransports and records them.
type mockTransportAdapter struct {
	ns string

	mutex   sync.Mutex
	revived []*mockTransport
}

func (mta *mockTransportAdapter) Namespace() string {
	return mta.ns
}

func (mta *mockTransportAdapter) TransportFromElement(el elements.TransportElement) (Transport, error) {
	mt := newMockTransport(el.Namespace())

	mta.mutex.Lock()
	mta.revived = append(mta.revived, mt)
	mta.mutex.Unlock()

	return mt, nil
}

// mockSecurityAdapter revives mockSecurities.
type mockSecurityAdapter struct {
	ns string
}

func (msa *mockSecurityAdapter) Namespace() string {
	return msa.ns
}

func (msa *mockSecurityAdapter) SecurityFromElement(el elements.SecurityElement) (Security, error) {
	return newMockSecurity(el.Namespace()), nil
}

// mockDescriptionHandler records inbound proposals.
type mockDescriptionHandler struct {
	ns string

	initiated  chan *Session
	contentAdd chan *Content
}

func newMockDescriptionHandler(ns string) *mockDescriptionHandler {
	return &mockDescriptionHandler{
		ns:         ns,
		initiated:  make(chan *Session, 8),
		contentAdd: make(chan *Content, 8),
	}
}

func (mdh *mockDescriptionHandler) Namespace() string {
	return mdh.ns
}

func (mdh *mockDescriptionHandler) NotifySessionInitiate(session *Session) {
	mdh.initiated <- session
}

func (mdh *mockDescriptionHandler) NotifyContentAdd(_ *Session, content *Content) {
	mdh.contentAdd <- content
}

// mockListener records a session's lifecycle events.
type mockListener struct {
	mutex       sync.Mutex
	transitions []SessionState
	accepted    bool
	terminated  *elements.ReasonElement
}

func (ml *mockListener) SessionStateUpdated(_, newState SessionState) {
	ml.mutex.Lock()
	defer ml.mutex.Unlock()

	ml.transitions = append(ml.transitions, newState)
}

func (ml *mockListener) SessionAccepted() {
	ml.mutex.Lock()
	defer ml.mutex.Unlock()

	ml.accepted = true
}

func (ml *mockListener) SessionTerminated(reason *elements.ReasonElement) {
	ml.mutex.Lock()
	defer ml.mutex.Unlock()

	ml.terminated = reason
}

func (ml *mockListener) terminatedWith() *elements.ReasonElement {
	ml.mutex.Lock()
	defer ml.mutex.Unlock()

	return ml.terminated
}
