// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package direct implements a plain TCP transport: each endpoint may
// advertise candidate addresses it listens on, the receiving side dials
// them in priority order, and a short token handshake pairs the raw
// connection with its negotiated content.
package direct
