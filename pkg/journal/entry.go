// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package journal

import (
	"fmt"
	"time"

	"github.com/jingle7/jingle7-go/pkg/jingle"
)

// Entry is the journalled meta data of one session. The Journal operates
// on Entries instead of live sessions.
type Entry struct {
	Id string `badgerhold:"key"`

	SessionID string
	Peer      string
	Local     string
	Role      string

	State    string `badgerholdIndex:"State"`
	Terminal bool   `badgerholdIndex:"Terminal"`

	Reason     string
	ReasonText string

	Started time.Time
	Updated time.Time `badgerholdIndex:"Updated"`

	Contents []ContentRecord
}

// ContentRecord is the journalled shape of one content.
type ContentRecord struct {
	Name        string
	Creator     string
	Senders     string
	Description string
	Transport   string
	Security    string
}

// entryId keys an Entry by peer and session id.
func entryId(peer, sessionID string) string {
	return fmt.Sprintf("%s/%s", peer, sessionID)
}

// newEntry snapshots a live session.
func newEntry(session *jingle.Session) Entry {
	now := time.Now()

	entry := Entry{
		Id: entryId(session.Peer().String(), session.ID()),

		SessionID: session.ID(),
		Peer:      session.Peer().String(),
		Local:     session.LocalAddress().String(),
		Role:      session.Role().String(),

		State:    session.State().String(),
		Terminal: session.State().IsTerminal(),

		Started: now,
		Updated: now,
	}

	for _, content := range session.Contents() {
		record := ContentRecord{
			Name:    content.Name(),
			Creator: string(content.Creator()),
			Senders: string(content.Senders()),
		}
		if description := content.Description(); description != nil {
			record.Description = description.Namespace()
		}
		if transport := content.Transport(); transport != nil {
			record.Transport = transport.Namespace()
		}
		if security := content.Security(); security != nil {
			record.Security = security.Namespace()
		}
		entry.Contents = append(entry.Contents, record)
	}

	return entry
}
