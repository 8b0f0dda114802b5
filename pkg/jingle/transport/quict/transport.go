// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quict

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/quict/internal"
)

const (
	// handshakeTimeout bounds the token exchange on the first stream.
	handshakeTimeout = 2 * time.Second

	// establishTimeout bounds how long the listening side waits for the
	// peer to connect before the transport reports itself as failed.
	establishTimeout = 30 * time.Second
)

// errTokenRefused is sent as the application error code when the peer
// presents a wrong pairing token.
const errTokenRefused = quic.ApplicationErrorCode(0x23)

// Transport is a QUIC transport of one content. The transport's creator
// runs a listening endpoint whose address and pairing token travel in
// the negotiation element; the reviving side dials.
type Transport struct {
	// dialer connects to the peer's listener instead of accepting.
	dialer bool

	token string

	mutex    sync.Mutex
	parent   *jingle.Content
	element  *TransportElement
	listener *quic.Listener
	started  bool

	// established delivers streams which passed the token handshake.
	established chan quic.Stream
}

// newListenerTransport binds a QUIC listening endpoint with a fresh
// pairing token.
func newListenerTransport(manager *Manager) (*Transport, error) {
	listener, err := quic.ListenAddr(manager.listenAddress, internal.GenerateSimpleListenerTLSConfig(), internal.GenerateQUICConfig())
	if err != nil {
		return nil, err
	}

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.ParseUint(portStr, 10, 16)
	if manager.advertiseHost != "" {
		host = manager.advertiseHost
	}

	token := elements.RandomID()

	return &Transport{
		token:       token,
		element:     &TransportElement{Host: host, Port: port, Token: token},
		listener:    listener,
		established: make(chan quic.Stream, 1),
	}, nil
}

// newDialerTransport revives the dialling counterpart of a peer's
// listening endpoint.
func newDialerTransport(el *TransportElement) *Transport {
	return &Transport{
		dialer:      true,
		token:       el.Token,
		element:     el,
		established: make(chan quic.Stream, 1),
	}
}

func (transport *Transport) Namespace() string {
	return Namespace
}

func (transport *Transport) Element() elements.TransportElement {
	return transport.element
}

func (transport *Transport) SetParent(content *jingle.Content) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	transport.parent = content
}

// Prepare starts the accept loop on the listening side.
func (transport *Transport) Prepare(_ jingle.Connection) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.dialer || transport.started || transport.listener == nil {
		return
	}
	transport.started = true

	go transport.acceptLoop(transport.listener)
}

func (transport *Transport) acceptLoop(listener *quic.Listener) {
	for {
		// Closing the listener makes Accept fail, ending this loop.
		connection, err := listener.Accept(context.Background())
		if err != nil {
			return
		}

		go transport.handleConnection(connection)
	}
}

// handleConnection verifies the pairing token on the connection's first
// stream and hands the stream to the establishment.
func (transport *Transport) handleConnection(connection quic.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	stream, err := connection.AcceptStream(ctx)
	if err != nil {
		_ = connection.CloseWithError(errTokenRefused, "no stream")
		return
	}

	token, err := cboring.ReadTextString(stream)
	if err != nil || token != transport.token {
		log.WithFields(log.Fields{
			"transport": transport,
			"peer":      connection.RemoteAddr(),
			"error":     err,
		}).Warn("Quict transport refused a connection with a wrong pairing token")

		_ = connection.CloseWithError(errTokenRefused, "wrong pairing token")
		return
	}

	if err := cboring.WriteTextString(transport.token, stream); err != nil {
		_ = connection.CloseWithError(errTokenRefused, "handshake failed")
		return
	}

	select {
	case transport.established <- stream:
	default:
		// A paired stream already exists.
		_ = connection.CloseWithError(errTokenRefused, "already paired")
	}
}

// connect dials the peer's listening endpoint and performs the token
// handshake on a fresh stream.
func (transport *Transport) connect() (quic.Stream, error) {
	connection, err := quic.DialAddr(context.Background(), transport.element.hostPort(), internal.GenerateSimpleDialerTLSConfig(), internal.GenerateQUICConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	stream, err := connection.OpenStreamSync(ctx)
	if err != nil {
		_ = connection.CloseWithError(errTokenRefused, "no stream")
		return nil, err
	}

	if err := cboring.WriteTextString(transport.token, stream); err != nil {
		_ = connection.CloseWithError(errTokenRefused, "handshake failed")
		return nil, err
	}

	echo, err := cboring.ReadTextString(stream)
	if err != nil {
		_ = connection.CloseWithError(errTokenRefused, "handshake failed")
		return nil, err
	}
	if echo != transport.token {
		_ = connection.CloseWithError(errTokenRefused, "wrong pairing token")
		return nil, fmt.Errorf("peer echoed a wrong pairing token")
	}

	return stream, nil
}

// establish produces the negotiated stream, dialling or accepting
// depending on this transport's side.
func (transport *Transport) establish(callback jingle.TransportCallback) {
	if transport.dialer {
		stream, err := transport.connect()
		if err != nil {
			callback.OnTransportFailed(err)
			return
		}
		callback.OnTransportReady(stream)
		return
	}

	select {
	case stream := <-transport.established:
		callback.OnTransportReady(stream)
	case <-time.After(establishTimeout):
		callback.OnTransportFailed(fmt.Errorf("quict transport %s: peer never connected", transport.element.hostPort()))
	}
}

func (transport *Transport) EstablishIncomingBytestream(_ jingle.Connection, callback jingle.TransportCallback, _ *jingle.Session) {
	transport.establish(callback)
}

func (transport *Transport) EstablishOutgoingBytestream(_ jingle.Connection, callback jingle.TransportCallback, _ *jingle.Session) {
	transport.establish(callback)
}

// HandleSessionAccept checks that the responder kept the negotiated
// pairing token.
func (transport *Transport) HandleSessionAccept(el elements.TransportElement, _ jingle.Connection) error {
	te, ok := el.(*TransportElement)
	if !ok {
		if el == nil {
			return nil
		}
		return fmt.Errorf("quict transport: unexpected element %T in session-accept", el)
	}

	if te.Token != transport.token {
		return fmt.Errorf("quict transport: session-accept for foreign token %q", te.Token)
	}
	return nil
}

// HandleTransportInfo rejects all infos; the quict transport negotiates
// everything in its initial element.
func (transport *Transport) HandleTransportInfo(_ elements.TransportElement, msg *elements.Message) *elements.Response {
	return elements.ErrorOf(msg, elements.ConditionFeatureNotImplemented)
}

// Cleanup closes the listening endpoint.
func (transport *Transport) Cleanup() {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.listener != nil {
		_ = transport.listener.Close()
		transport.listener = nil
	}
}

func (transport *Transport) String() string {
	side := "listener"
	if transport.dialer {
		side = "dialer"
	}
	return fmt.Sprintf("QuictTransport(%s,%s)", side, transport.element.hostPort())
}
