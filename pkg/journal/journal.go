// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package journal persists the life cycle of negotiated sessions in a
// badgerhold database, so an endpoint can inspect past and running
// negotiations across restarts.
package journal

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// Journal implements a storage for session Entries.
type Journal struct {
	bh *badgerhold.Store
}

// NewJournal creates a new Journal or opens an existing one from the
// given path.
func NewJournal(dir string) (journal *Journal, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		journal = &Journal{bh: bh}
	}
	return
}

// Close the Journal. It must not be used afterwards.
func (journal *Journal) Close() error {
	return journal.bh.Close()
}

// Track journals the given session and follows its state changes.
func (journal *Journal) Track(session *jingle.Session) error {
	entry := newEntry(session)

	log.WithFields(log.Fields{
		"entry": entry.Id,
	}).Debug("Journal starts tracking a session")

	if err := journal.bh.Upsert(entry.Id, entry); err != nil {
		return err
	}

	session.AddListener(&journalListener{journal: journal, session: session})
	return nil
}

// update rewrites the session's Entry with its current state.
func (journal *Journal) update(session *jingle.Session, reason *elements.ReasonElement) {
	entry := Entry{}
	id := entryId(session.Peer().String(), session.ID())

	if err := journal.bh.Get(id, &entry); err != nil {
		log.WithFields(log.Fields{
			"entry": id,
			"error": err,
		}).Warn("Journal misses the Entry of a tracked session")
		return
	}

	entry.State = session.State().String()
	entry.Terminal = session.State().IsTerminal()
	entry.Updated = time.Now()
	if reason != nil {
		entry.Reason = string(reason.Reason)
		entry.ReasonText = reason.Text
	}

	if err := journal.bh.Update(entry.Id, entry); err != nil {
		log.WithFields(log.Fields{
			"entry": entry.Id,
			"error": err,
		}).Warn("Journal failed to update an Entry")
	}
}

// QueryId fetches the Entry of the given peer and session id.
func (journal *Journal) QueryId(peer, sessionID string) (entry Entry, err error) {
	err = journal.bh.Get(entryId(peer, sessionID), &entry)
	return
}

// QueryRunning fetches all Entries of sessions not yet terminated.
func (journal *Journal) QueryRunning() (entries []Entry, err error) {
	err = journal.bh.Find(&entries, badgerhold.Where("Terminal").Eq(false))
	return
}

// QueryPeer fetches all Entries negotiated with the given peer.
func (journal *Journal) QueryPeer(peer elements.Address) (entries []Entry, err error) {
	err = journal.bh.Find(&entries, badgerhold.Where("Peer").Eq(peer.String()))
	return
}

// DeleteOlderThan removes all terminated Entries not updated since the
// given point in time.
func (journal *Journal) DeleteOlderThan(cutoff time.Time) {
	var entries []Entry
	query := badgerhold.Where("Terminal").Eq(true).And("Updated").Lt(cutoff)
	if err := journal.bh.Find(&entries, query); err != nil {
		log.WithError(err).Warn("Journal failed to query outdated Entries")
		return
	}

	for _, entry := range entries {
		logger := log.WithField("entry", entry.Id)
		if err := journal.bh.Delete(entry.Id, Entry{}); err != nil {
			logger.WithError(err).Warn("Journal failed to delete an outdated Entry")
		} else {
			logger.Info("Journal deleted an outdated Entry")
		}
	}
}

// journalListener follows one tracked session.
type journalListener struct {
	journal *Journal
	session *jingle.Session
}

func (listener *journalListener) SessionStateUpdated(_, _ jingle.SessionState) {
	listener.journal.update(listener.session, nil)
}

func (listener *journalListener) SessionAccepted() {}

func (listener *journalListener) SessionTerminated(reason *elements.ReasonElement) {
	listener.journal.update(listener.session, reason)
}
