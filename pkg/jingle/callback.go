// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

// TransportCallback receives the outcome of a transport's bytestream
// establishment. The Content of the negotiated session implements it.
type TransportCallback interface {
	// OnTransportReady is called with the established bytestream. The
	// session must not be nil.
	OnTransportReady(session BytestreamSession)

	// OnTransportFailed is called when the bytestream could not be
	// established. Failing a transport blacklists it for its content and,
	// on the initiator's side, starts a transport replacement.
	OnTransportFailed(err error)
}

// SecurityCallback receives the outcome of wrapping a bytestream into its
// security layer.
type SecurityCallback interface {
	// OnSecurityReady is called with the wrapped bytestream.
	OnSecurityReady(session BytestreamSession)

	// OnSecurityFailed is called when the security layer could not be
	// established.
	OnSecurityFailed(err error)
}
