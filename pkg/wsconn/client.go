// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wsconn

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Client is a jingle.Connection speaking to a Hub over one WebSocket.
type Client struct {
	conn    *websocket.Conn
	address elements.Address

	writeMutex sync.Mutex

	handlerMutex sync.RWMutex
	handler      jingle.RequestHandler

	pendingMutex sync.Mutex
	pending      map[string]chan *elements.Response

	// inboundFrom remembers the requester of each inbound request until
	// its Response went out.
	inboundFrom sync.Map

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a Hub's WebSocket endpoint, e.g.,
// "ws://localhost:2347/ws", and registers the given address.
func Dial(url string, address elements.Address) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	client := &Client{
		conn:    conn,
		address: address,
		pending: make(map[string]chan *elements.Response),
		closed:  make(chan struct{}),
	}

	if err := client.writeMessage(&wsmHello{Address: address}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	wsm, err := client.readMessage()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if status, ok := wsm.(*wsmStatus); !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("expected a status message, got %T", wsm)
	} else if status.Error != "" {
		_ = conn.Close()
		return nil, fmt.Errorf("hub refused the registration: %s", status.Error)
	}

	go client.handleConn()

	return client, nil
}

func (client *Client) writeMessage(wsm wsMessage) error {
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

func (client *Client) readMessage() (wsMessage, error) {
	messageType, reader, err := client.conn.NextReader()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("websocket reader's type %d is not binary", messageType)
	}
	return unmarshalCbor(reader)
}

func (client *Client) handleConn() {
	defer client.shutdown()

	logger := log.WithField("wsconn client", client.address)

	for {
		wsm, err := client.readMessage()
		if err != nil {
			logger.WithError(err).Debug("Reading from the hub ended")
			return
		}

		switch wsm := wsm.(type) {
		case *wsmRequest:
			go client.handleRequest(wsm.Msg)

		case *wsmResponse:
			client.deliverResponse(wsm.Resp)

		default:
			logger.WithField("message", wsm).Warn("Received unknown / unsupported message")
		}
	}
}

// handleRequest feeds an inbound request to the registered handler and
// returns its Response to the requester. A nil handler answers
// item-not-found; a nil Response defers to a later SendResponse call.
func (client *Client) handleRequest(msg *elements.Message) {
	client.inboundFrom.Store(msg.ID, msg.From)

	client.handlerMutex.RLock()
	handler := client.handler
	client.handlerMutex.RUnlock()

	if handler == nil {
		_ = client.SendResponse(elements.ErrorOf(msg, elements.ConditionItemNotFound))
		return
	}

	if resp := handler.HandleMessage(msg); resp != nil {
		if err := client.SendResponse(resp); err != nil {
			log.WithFields(log.Fields{
				"wsconn client": client.address,
				"response":      resp,
				"error":         err,
			}).Warn("Sending a response failed")
		}
	}
}

func (client *Client) deliverResponse(resp *elements.Response) {
	client.pendingMutex.Lock()
	ch, ok := client.pending[resp.ID]
	if ok {
		delete(client.pending, resp.ID)
	}
	client.pendingMutex.Unlock()

	if !ok {
		log.WithFields(log.Fields{
			"wsconn client": client.address,
			"response":      resp,
		}).Debug("Dropping a response without a pending request")
		return
	}
	ch <- resp
}

// SendRequest delivers msg to the Hub and blocks until the addressed
// peer's Response arrives.
func (client *Client) SendRequest(ctx context.Context, msg *elements.Message) (*elements.Response, error) {
	ch := make(chan *elements.Response, 1)

	client.pendingMutex.Lock()
	client.pending[msg.ID] = ch
	client.pendingMutex.Unlock()

	defer func() {
		client.pendingMutex.Lock()
		delete(client.pending, msg.ID)
		client.pendingMutex.Unlock()
	}()

	if err := client.writeMessage(&wsmRequest{Msg: msg}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-client.closed:
		return nil, fmt.Errorf("connection closed")
	}
}

// SendResponse delivers a Response for a previously received request.
func (client *Client) SendResponse(resp *elements.Response) error {
	from, ok := client.inboundFrom.LoadAndDelete(resp.ID)
	if !ok {
		return fmt.Errorf("no inbound request with id %s", resp.ID)
	}

	return client.writeMessage(&wsmResponse{To: from.(elements.Address), Resp: resp})
}

func (client *Client) RegisterRequestHandler(handler jingle.RequestHandler) {
	client.handlerMutex.Lock()
	defer client.handlerMutex.Unlock()

	client.handler = handler
}

func (client *Client) LocalAddress() elements.Address {
	return client.address
}

func (client *Client) shutdown() {
	client.closeOnce.Do(func() {
		close(client.closed)
		_ = client.conn.Close()
	})
}

// Close the connection to the Hub. Pending requests fail.
func (client *Client) Close() error {
	client.shutdown()
	return nil
}
