// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package inband implements a transport tunnelling the byte stream
// through the signalling connection itself: the data travels chunked in
// transport-info messages, each chunk protected by a CRC-16 checksum.
//
// This transport needs no additional connectivity between the peers and
// therefore serves as the fallback when every direct path fails, at the
// price of throughput.
package inband
