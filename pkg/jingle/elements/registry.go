// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import (
	"fmt"
	"io"
	"sync"

	"github.com/dtn7/cboring"
)

// ChildElement is the wire representation of a content's description,
// transport or security part. Concrete element types are identified by
// their namespace and register a decoder at the ElementRegistry.
type ChildElement interface {
	cboring.CborMarshaler

	// Namespace identifies this element's concrete kind.
	Namespace() string
}

// DescriptionElement is the wire representation of a content's description.
type DescriptionElement interface {
	ChildElement
}

// TransportElement is the wire representation of a content's transport,
// including transport-specific sub-messages for transport-info exchanges.
type TransportElement interface {
	ChildElement
}

// SecurityElement is the wire representation of a content's security.
type SecurityElement interface {
	ChildElement
}

// ElementRegistry keeps a book on decoder functions for the three kinds of
// ChildElements, keyed by their namespace. It mirrors the runtime-extensible
// registration of extension blocks: an element kind unknown to the registry
// results in a decoding error, never in a silently skipped element.
//
// A singleton ElementRegistry can be fetched by GetElementRegistry.
type ElementRegistry struct {
	mutex sync.RWMutex

	descriptions map[string]func(io.Reader) (DescriptionElement, error)
	transports   map[string]func(io.Reader) (TransportElement, error)
	securities   map[string]func(io.Reader) (SecurityElement, error)
}

// NewElementRegistry creates an empty ElementRegistry.
func NewElementRegistry() *ElementRegistry {
	return &ElementRegistry{
		descriptions: make(map[string]func(io.Reader) (DescriptionElement, error)),
		transports:   make(map[string]func(io.Reader) (TransportElement, error)),
		securities:   make(map[string]func(io.Reader) (SecurityElement, error)),
	}
}

// RegisterDescription adds a decoder for DescriptionElements of the namespace.
func (reg *ElementRegistry) RegisterDescription(ns string, decode func(io.Reader) (DescriptionElement, error)) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	reg.descriptions[ns] = decode
}

// RegisterTransport adds a decoder for TransportElements of the namespace.
func (reg *ElementRegistry) RegisterTransport(ns string, decode func(io.Reader) (TransportElement, error)) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	reg.transports[ns] = decode
}

// RegisterSecurity adds a decoder for SecurityElements of the namespace.
func (reg *ElementRegistry) RegisterSecurity(ns string, decode func(io.Reader) (SecurityElement, error)) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	reg.securities[ns] = decode
}

// DecodeDescription decodes a DescriptionElement of the given namespace.
func (reg *ElementRegistry) DecodeDescription(ns string, r io.Reader) (DescriptionElement, error) {
	reg.mutex.RLock()
	decode, ok := reg.descriptions[ns]
	reg.mutex.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no DescriptionElement registered for namespace %q", ns)
	}
	return decode(r)
}

// DecodeTransport decodes a TransportElement of the given namespace.
func (reg *ElementRegistry) DecodeTransport(ns string, r io.Reader) (TransportElement, error) {
	reg.mutex.RLock()
	decode, ok := reg.transports[ns]
	reg.mutex.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no TransportElement registered for namespace %q", ns)
	}
	return decode(r)
}

// DecodeSecurity decodes a SecurityElement of the given namespace.
func (reg *ElementRegistry) DecodeSecurity(ns string, r io.Reader) (SecurityElement, error) {
	reg.mutex.RLock()
	decode, ok := reg.securities[ns]
	reg.mutex.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no SecurityElement registered for namespace %q", ns)
	}
	return decode(r)
}

// elementRegistry is the pointer to the singleton ElementRegistry.
var elementRegistry *ElementRegistry
var elementRegistryOnce sync.Once

// GetElementRegistry returns the singleton ElementRegistry.
func GetElementRegistry() *ElementRegistry {
	elementRegistryOnce.Do(func() {
		elementRegistry = NewElementRegistry()
	})

	return elementRegistry
}
