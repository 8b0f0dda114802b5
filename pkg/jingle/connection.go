// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"context"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// RequestHandler processes inbound requests of a Connection and produces
// the correlated Response. A Manager is the canonical RequestHandler.
type RequestHandler interface {
	HandleMessage(msg *elements.Message) *elements.Response
}

// Connection is the signalling channel the negotiation runs over. It
// delivers Messages to the peer addressed in each Message and feeds
// inbound requests to the registered RequestHandler.
//
// Implementations must be safe for concurrent use; the negotiation sends
// from multiple goroutines.
type Connection interface {
	// SendRequest delivers msg and blocks until the peer's Response
	// arrives, the context is done, or the connection fails.
	SendRequest(ctx context.Context, msg *elements.Message) (*elements.Response, error)

	// SendResponse delivers a Response for a previously received request.
	SendResponse(resp *elements.Response) error

	// RegisterRequestHandler sets the handler for inbound requests.
	// Requests arriving without a registered handler are answered with an
	// item-not-found error.
	RegisterRequestHandler(handler RequestHandler)

	// LocalAddress returns the address this endpoint is reachable under.
	LocalAddress() elements.Address

	// Close shuts the connection down.
	Close() error
}
