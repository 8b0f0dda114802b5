// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

// Role is our part in a session: the initiator proposed the session, the
// responder received the proposal.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (role Role) String() string {
	switch role {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}
