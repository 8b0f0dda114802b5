// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "github.com/jingle7/jingle7-go/pkg/jingle/elements"

// A DescriptionAdapter revives a Description from its wire element. One
// adapter per description namespace is registered with the Manager.
type DescriptionAdapter interface {
	Namespace() string

	DescriptionFromElement(el elements.DescriptionElement) (Description, error)
}

// A TransportAdapter revives a Transport from its wire element.
type TransportAdapter interface {
	Namespace() string

	TransportFromElement(el elements.TransportElement) (Transport, error)
}

// A SecurityAdapter revives a Security from its wire element.
type SecurityAdapter interface {
	Namespace() string

	SecurityFromElement(el elements.SecurityElement) (Security, error)
}
