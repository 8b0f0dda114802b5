// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package elements models the abstract protocol messages exchanged during
// session negotiation: the Message envelope with its action vocabulary,
// content elements, termination reasons and error conditions.
//
// Child elements of a content (description, transport, security) are
// polymorphic over their namespace. Their concrete wire representations are
// registered at an ElementRegistry, which decodes them back from a
// namespace-tagged CBOR byte string.
package elements
