// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xchacha

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// keyInfo binds derived keys to this security layer.
var keyInfo = []byte("jingle7 xchacha stream key")

// Security encrypts one content's byte stream with XChaCha20-Poly1305.
type Security struct {
	psk  []byte
	salt []byte

	mutex  sync.Mutex
	parent *jingle.Content
}

// NewSecurity creates a security layer over the pre-shared key with a
// fresh random salt.
func NewSecurity(psk []byte) (*Security, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	return &Security{psk: psk, salt: salt}, nil
}

// fromElement revives the counterpart of a peer's security layer,
// adopting its salt.
func fromElement(psk []byte, el *SecurityElement) *Security {
	return &Security{psk: psk, salt: el.Salt}
}

func (security *Security) Namespace() string {
	return Namespace
}

func (security *Security) Element() elements.SecurityElement {
	return &SecurityElement{Salt: security.salt}
}

func (security *Security) SetParent(content *jingle.Content) {
	security.mutex.Lock()
	defer security.mutex.Unlock()

	security.parent = content
}

// Prepare is a no-op; the key is pre-shared and the salt travels in the
// negotiation element.
func (security *Security) Prepare(_ jingle.Connection, _ elements.Address) {}

// deriveAEAD derives the stream key from psk and salt via HKDF-SHA256.
func (security *Security) deriveAEAD() (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, security.psk, security.salt, keyInfo), key); err != nil {
		return nil, fmt.Errorf("deriving the stream key failed: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

func (security *Security) wrap(session jingle.BytestreamSession, callback jingle.SecurityCallback) {
	aead, err := security.deriveAEAD()
	if err != nil {
		callback.OnSecurityFailed(err)
		return
	}
	callback.OnSecurityReady(newCryptoStream(session, aead))
}

func (security *Security) DecryptIncomingBytestream(session jingle.BytestreamSession, callback jingle.SecurityCallback) {
	security.wrap(session, callback)
}

func (security *Security) EncryptOutgoingBytestream(session jingle.BytestreamSession, callback jingle.SecurityCallback) {
	security.wrap(session, callback)
}

// HandleSecurityInfo rejects all infos; this layer negotiates everything
// in its initial element.
func (security *Security) HandleSecurityInfo(_ elements.SecurityElement, msg *elements.Message) *elements.Response {
	return elements.ErrorOf(msg, elements.ConditionFeatureNotImplemented)
}

func (security *Security) String() string {
	return fmt.Sprintf("XChaChaSecurity(%x)", security.salt[:4])
}

// Adapter revives xchacha security layers from negotiation elements,
// implementing jingle.SecurityAdapter.
type Adapter struct {
	psk []byte
}

// NewAdapter for the given pre-shared key.
func NewAdapter(psk []byte) *Adapter {
	return &Adapter{psk: psk}
}

func (adapter *Adapter) Namespace() string {
	return Namespace
}

func (adapter *Adapter) SecurityFromElement(el elements.SecurityElement) (jingle.Security, error) {
	se, ok := el.(*SecurityElement)
	if !ok {
		return nil, fmt.Errorf("xchacha security cannot be revived from %T", el)
	}
	if len(se.Salt) != saltLength {
		return nil, fmt.Errorf("xchacha security: salt length is %d, not required %d", len(se.Salt), saltLength)
	}
	return fromElement(adapter.psk, se), nil
}

// NewSecurity creates a fresh local security layer with the adapter's
// pre-shared key.
func (adapter *Adapter) NewSecurity() (*Security, error) {
	return NewSecurity(adapter.psk)
}
