// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package jingle implements the negotiation core of a peer-to-peer
// session-establishment protocol: sessions and their named contents move
// through proposal, acceptance, transport replacement with tie-breaking and
// blacklisting, and termination, until an out-of-band byte stream between
// both endpoints is established.
//
// The concrete capabilities of a content are polymorphic: a Description
// (what is being exchanged), a Transport (how the byte stream is
// established) and an optional Security (how the byte stream is wrapped)
// implement the interfaces of this package and are resolved from their
// wire namespace through the registries of a Manager.
//
// The Manager supervises all sessions of one Connection, routes inbound
// requests to the addressed Session and holds the adapter, transport
// manager and description handler registries.
package jingle
