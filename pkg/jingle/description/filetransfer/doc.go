// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package filetransfer implements a file offering description: the
// negotiation element announces name, size, media type and SHA-256 of a
// file, the established byte stream carries its bytes, optionally xz
// compressed, and the receiver verifies the digest before reporting the
// content as finished.
package filetransfer
