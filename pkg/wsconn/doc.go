// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wsconn implements the signalling channel over WebSockets: a
// Hub relays CBOR-framed requests and responses between connected
// endpoints, and a Client is the jingle.Connection an endpoint
// negotiates over.
package wsconn
