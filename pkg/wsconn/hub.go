// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wsconn

import (
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Hub relays signalling messages between connected endpoints. Each
// endpoint registers its address with a hello; requests are routed by
// the Message's To address, responses by the envelope's To address.
type Hub struct {
	upgrader websocket.Upgrader

	// clients maps an address string to its *hubClient.
	clients sync.Map
}

// NewHub will be created; its ServeHTTP function, or the Router, must be
// bound to an HTTP server.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{},
	}
}

// Router returns a mux.Router serving this Hub under /ws.
func (hub *Hub) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.ServeHTTP)
	return router
}

// hubClient is one registered endpoint.
type hubClient struct {
	conn    *websocket.Conn
	address elements.Address

	writeMutex sync.Mutex
}

func (client *hubClient) writeMessage(wsm wsMessage) error {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	w, err := client.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	if err := marshalCbor(wsm, w); err != nil {
		return err
	}
	return w.Close()
}

func (client *hubClient) readMessage() (wsMessage, error) {
	messageType, reader, err := client.conn.NextReader()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("websocket reader's type %d is not binary", messageType)
	}
	return unmarshalCbor(reader)
}

// ServeHTTP must be bound to an HTTP endpoint, e.g., to /ws.
func (hub *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, connErr := hub.upgrader.Upgrade(rw, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	client := &hubClient{conn: conn}
	if err := hub.register(client); err != nil {
		_ = client.writeMessage(newStatusMessage(err))
		_ = conn.Close()
		return
	}

	if err := client.writeMessage(newStatusMessage(nil)); err != nil {
		hub.unregister(client)
		_ = conn.Close()
		return
	}

	hub.handleClient(client)
}

// register expects the client's hello and claims its address.
func (hub *Hub) register(client *hubClient) error {
	wsm, err := client.readMessage()
	if err != nil {
		return err
	}

	hello, ok := wsm.(*wsmHello)
	if !ok {
		return fmt.Errorf("expected a hello message, got %T", wsm)
	}
	if hello.Address.IsEmpty() {
		return fmt.Errorf("hello carries an empty address")
	}

	if _, loaded := hub.clients.LoadOrStore(hello.Address.String(), client); loaded {
		return fmt.Errorf("address %v is already registered", hello.Address)
	}
	client.address = hello.Address

	log.WithField("endpoint", hello.Address).Info("Hub registered an endpoint")
	return nil
}

func (hub *Hub) unregister(client *hubClient) {
	if client.address.IsEmpty() {
		return
	}
	if current, ok := hub.clients.Load(client.address.String()); ok && current == client {
		hub.clients.Delete(client.address.String())

		log.WithField("endpoint", client.address).Info("Hub unregistered an endpoint")
	}
}

func (hub *Hub) handleClient(client *hubClient) {
	defer func() {
		hub.unregister(client)
		_ = client.conn.Close()
	}()

	logger := log.WithField("endpoint", client.address)

	for {
		wsm, err := client.readMessage()
		if err != nil {
			logger.WithError(err).Debug("Reading from an endpoint ended")
			return
		}

		switch wsm := wsm.(type) {
		case *wsmRequest:
			hub.routeRequest(client, wsm)

		case *wsmResponse:
			hub.routeResponse(client, wsm)

		default:
			logger.WithField("message", wsm).Warn("Received unknown / unsupported message")
		}
	}
}

func (hub *Hub) routeRequest(sender *hubClient, wsm *wsmRequest) {
	value, ok := hub.clients.Load(wsm.Msg.To.String())
	if !ok {
		log.WithFields(log.Fields{
			"from": sender.address,
			"to":   wsm.Msg.To,
		}).Debug("Hub bounces a request to an unknown endpoint")

		_ = sender.writeMessage(&wsmResponse{
			To:   sender.address,
			Resp: elements.ErrorOf(wsm.Msg, elements.ConditionItemNotFound),
		})
		return
	}

	if err := value.(*hubClient).writeMessage(wsm); err != nil {
		log.WithFields(log.Fields{
			"to":    wsm.Msg.To,
			"error": err,
		}).Warn("Hub failed to forward a request")
	}
}

func (hub *Hub) routeResponse(sender *hubClient, wsm *wsmResponse) {
	value, ok := hub.clients.Load(wsm.To.String())
	if !ok {
		log.WithFields(log.Fields{
			"from": sender.address,
			"to":   wsm.To,
		}).Debug("Hub drops a response to an unknown endpoint")
		return
	}

	if err := value.(*hubClient).writeMessage(wsm); err != nil {
		log.WithFields(log.Fields{
			"to":    wsm.To,
			"error": err,
		}).Warn("Hub failed to forward a response")
	}
}

// Addresses of all currently connected endpoints.
func (hub *Hub) Addresses() []elements.Address {
	var addresses []elements.Address
	hub.clients.Range(func(_, value interface{}) bool {
		addresses = append(addresses, value.(*hubClient).address)
		return true
	})
	return addresses
}

// Close disconnects all endpoints.
func (hub *Hub) Close() error {
	var err *multierror.Error

	hub.clients.Range(func(_, value interface{}) bool {
		client := value.(*hubClient)
		if closeErr := client.conn.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
		return true
	})

	return err.ErrorOrNil()
}
