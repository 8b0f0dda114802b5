// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package direct

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

const (
	// handshakeTimeout bounds the token exchange on a fresh connection.
	handshakeTimeout = 2 * time.Second

	// acceptTimeout bounds how long the sending side waits for the peer
	// to connect before the transport reports itself as failed.
	acceptTimeout = 30 * time.Second
)

// Transport is the direct TCP transport of one content: an own listening
// socket whose address is advertised as candidates, plus the peer's
// candidates to dial.
type Transport struct {
	// peers holds the peer's candidates, best first.
	peers jingle.CandidateSet

	dest string

	mutex    sync.Mutex
	parent   *jingle.Content
	local    []CandidateElement
	listener *net.TCPListener
	started  bool

	// accepted delivers connections which passed the token handshake.
	accepted chan net.Conn

	stopSyn chan struct{}
	stopAck chan struct{}
}

// newTransport binds a listening socket and prepares the transport for
// the given pairing token. An empty token generates a fresh one.
func newTransport(manager *Manager, dest string) (*Transport, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", manager.listenAddress)
	if err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}

	if dest == "" {
		dest = elements.RandomID()
	}

	transport := &Transport{
		dest:     dest,
		listener: listener,
		accepted: make(chan net.Conn, 1),
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}

	transport.local = []CandidateElement{manager.candidateFor(listener)}

	return transport, nil
}

func (transport *Transport) Namespace() string {
	return Namespace
}

func (transport *Transport) Element() elements.TransportElement {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	el := &TransportElement{Dest: transport.dest}
	el.Candidates = append(el.Candidates, transport.local...)
	return el
}

func (transport *Transport) SetParent(content *jingle.Content) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	transport.parent = content
}

// adoptCandidates merges the peer's candidates into the dialling order.
func (transport *Transport) adoptCandidates(els []CandidateElement) {
	for _, el := range els {
		transport.peers.AddCandidate(transport, newCandidate(el))
	}
}

// Prepare starts the accept loop on the listening socket.
func (transport *Transport) Prepare(_ jingle.Connection) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.started || transport.listener == nil {
		return
	}
	transport.started = true

	go transport.acceptLoop(transport.listener)
}

func (transport *Transport) acceptLoop(listener *net.TCPListener) {
	for {
		select {
		case <-transport.stopSyn:
			_ = listener.Close()
			close(transport.stopAck)

			return

		default:
			if err := listener.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				log.WithFields(log.Fields{
					"transport": transport,
					"error":     err,
				}).Warn("Direct transport failed to set deadline on TCP socket")

				transport.Cleanup()
			} else if conn, err := listener.Accept(); err == nil {
				go transport.handleInbound(conn)
			}
		}
	}
}

// handleInbound verifies the pairing token of a fresh inbound connection
// and hands it to the establishment, echoing the token back on success.
func (transport *Transport) handleInbound(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	// Read unbuffered so no stream bytes following the token are consumed.
	token, err := cboring.ReadTextString(conn)
	if err != nil || token != transport.dest {
		log.WithFields(log.Fields{
			"transport": transport,
			"conn":      conn.RemoteAddr(),
			"error":     err,
		}).Warn("Direct transport refused a connection with a wrong pairing token")

		_ = conn.Close()
		return
	}

	if err := cboring.WriteTextString(transport.dest, conn); err != nil {
		_ = conn.Close()
		return
	}

	_ = conn.SetDeadline(time.Time{})

	select {
	case transport.accepted <- conn:
	default:
		// A paired connection already exists.
		_ = conn.Close()
	}
}

// dialPeer tries the peer's candidates in priority order and performs the
// token handshake.
func (transport *Transport) dialPeer() (net.Conn, error) {
	candidates := transport.peers.Candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("direct transport %s: no peer candidates", transport.dest)
	}

	for _, candidate := range candidates {
		address := candidate.(*Candidate).el.hostPort()

		conn, err := dial(address)
		if err != nil {
			log.WithFields(log.Fields{
				"transport": transport,
				"candidate": candidate,
				"error":     err,
			}).Debug("Direct transport failed to dial a candidate")
			continue
		}

		if err := transport.handshakeOutbound(conn); err != nil {
			log.WithFields(log.Fields{
				"transport": transport,
				"candidate": candidate,
				"error":     err,
			}).Debug("Direct transport handshake failed")

			_ = conn.Close()
			continue
		}

		return conn, nil
	}

	return nil, fmt.Errorf("direct transport %s: all %d candidates failed", transport.dest, len(candidates))
}

func (transport *Transport) handshakeOutbound(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	if err := cboring.WriteTextString(transport.dest, conn); err != nil {
		return err
	}

	echo, err := cboring.ReadTextString(conn)
	if err != nil {
		return err
	}
	if echo != transport.dest {
		return fmt.Errorf("peer echoed a wrong pairing token")
	}

	_ = conn.SetDeadline(time.Time{})
	return nil
}

// EstablishIncomingBytestream dials the peer's candidates.
func (transport *Transport) EstablishIncomingBytestream(_ jingle.Connection, callback jingle.TransportCallback, _ *jingle.Session) {
	conn, err := transport.dialPeer()
	if err != nil {
		callback.OnTransportFailed(err)
		return
	}
	callback.OnTransportReady(conn)
}

// EstablishOutgoingBytestream waits for the peer to connect to one of our
// advertised candidates.
func (transport *Transport) EstablishOutgoingBytestream(_ jingle.Connection, callback jingle.TransportCallback, _ *jingle.Session) {
	select {
	case conn := <-transport.accepted:
		callback.OnTransportReady(conn)
	case <-time.After(acceptTimeout):
		callback.OnTransportFailed(fmt.Errorf("direct transport %s: peer never connected", transport.dest))
	}
}

// HandleSessionAccept merges the candidates the responder advertised.
func (transport *Transport) HandleSessionAccept(el elements.TransportElement, _ jingle.Connection) error {
	te, ok := el.(*TransportElement)
	if !ok {
		if el == nil {
			return nil
		}
		return fmt.Errorf("direct transport: unexpected element %T in session-accept", el)
	}

	if te.Dest != transport.dest {
		return fmt.Errorf("direct transport: session-accept for foreign token %q", te.Dest)
	}

	transport.adoptCandidates(te.Candidates)
	return nil
}

// HandleTransportInfo merges trickled candidates.
func (transport *Transport) HandleTransportInfo(info elements.TransportElement, msg *elements.Message) *elements.Response {
	te, ok := info.(*TransportElement)
	if !ok || te.Dest != transport.dest {
		return elements.ErrorOf(msg, elements.ConditionBadRequest)
	}

	transport.adoptCandidates(te.Candidates)
	return elements.ResultOf(msg)
}

// Cleanup stops the accept loop and closes the listening socket.
func (transport *Transport) Cleanup() {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if !transport.started {
		if transport.listener != nil {
			_ = transport.listener.Close()
			transport.listener = nil
		}
		return
	}
	transport.started = false
	transport.listener = nil

	close(transport.stopSyn)
	<-transport.stopAck
}

func (transport *Transport) String() string {
	return fmt.Sprintf("DirectTransport(%s)", transport.dest)
}

// candidateFor builds the advertised CandidateElement for a bound
// listener, preferring the Manager's configured advertise address.
func (manager *Manager) candidateFor(listener *net.TCPListener) CandidateElement {
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.ParseUint(portStr, 10, 16)

	if manager.advertiseHost != "" {
		host = manager.advertiseHost
	}

	return CandidateElement{
		ID:       elements.RandomID(),
		Host:     host,
		Port:     port,
		Priority: manager.candidatePriority,
	}
}
