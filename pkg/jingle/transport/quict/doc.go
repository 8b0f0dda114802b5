// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package quict implements an out-of-band transport over QUIC. The
// transport's creator runs a listening endpoint secured by an ephemeral
// self-signed certificate and advertises its address together with a
// pairing token; the reviving side dials and presents the token on the
// connection's first stream, which then carries the content's bytes.
package quict
