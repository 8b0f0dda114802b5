// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "github.com/jingle7/jingle7-go/pkg/jingle/elements"

// Security wraps a Content's established byte stream into an additional
// protection layer before the Description sees it. It is optional; a
// Content without Security hands the raw byte stream to its Description.
type Security interface {
	// Namespace identifies this security type on the wire.
	Namespace() string

	// Element returns the wire representation of this security layer.
	Element() elements.SecurityElement

	// SetParent attaches this security layer to the Content using it.
	SetParent(content *Content)

	// Prepare is called once before the bytestream establishment starts,
	// e.g., to exchange key material with the peer.
	Prepare(conn Connection, peer elements.Address)

	// DecryptIncomingBytestream wraps the receiving side of the byte
	// stream and reports the outcome to the callback.
	DecryptIncomingBytestream(session BytestreamSession, callback SecurityCallback)

	// EncryptOutgoingBytestream wraps the sending side of the byte stream
	// and reports the outcome to the callback.
	EncryptOutgoingBytestream(session BytestreamSession, callback SecurityCallback)

	// HandleSecurityInfo processes a security-specific sub-message.
	HandleSecurityInfo(info elements.SecurityElement, msg *elements.Message) *elements.Response
}
