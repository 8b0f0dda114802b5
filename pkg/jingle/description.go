// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "github.com/jingle7/jingle7-go/pkg/jingle/elements"

// Description is the application payload of a Content: it consumes the
// byte stream once the transport, and optionally the security layer, has
// established it.
type Description interface {
	// Namespace identifies this description type on the wire.
	Namespace() string

	// Element returns the wire representation of this description.
	Element() elements.DescriptionElement

	// SetParent attaches this description to the Content carrying it.
	SetParent(content *Content)

	// OnBytestreamReady hands the established byte stream over to the
	// application logic. The description signals completion through its
	// content's OnContentFinished or OnContentCancel.
	OnBytestreamReady(session BytestreamSession)

	// HandleDescriptionInfo processes a description-specific sub-message.
	HandleDescriptionInfo(info elements.DescriptionElement, msg *elements.Message) *elements.Response

	// HandleContentTerminate is called when the session carrying this
	// description's content was terminated with the given reason.
	HandleContentTerminate(reason elements.Reason)
}
