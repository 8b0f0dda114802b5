// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package xchacha implements a security layer encrypting a content's
// byte stream with XChaCha20-Poly1305. Both endpoints hold a pre-shared
// key; a random salt travelling in the negotiation element derives a
// fresh stream key per content, so no key material crosses the wire.
package xchacha
