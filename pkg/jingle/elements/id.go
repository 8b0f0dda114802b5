// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomID returns a random token usable as a message, session or content
// identifier: 16 bytes of entropy, hex-encoded.
func RandomID() string {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		// crypto/rand only fails if the platform's entropy source is broken.
		panic(err)
	}

	return hex.EncodeToString(token)
}
