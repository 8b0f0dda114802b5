// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filetransfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// acceptTimeout bounds the signalling requests an Inbox sends.
const acceptTimeout = 30 * time.Second

// Adapter revives file transfer descriptions from negotiation elements,
// implementing jingle.DescriptionAdapter.
type Adapter struct{}

func (adapter Adapter) Namespace() string {
	return Namespace
}

func (adapter Adapter) DescriptionFromElement(el elements.DescriptionElement) (jingle.Description, error) {
	de, ok := el.(*DescriptionElement)
	if !ok {
		return nil, fmt.Errorf("file transfer cannot be revived from %T", el)
	}
	return fromElement(de), nil
}

// Inbox auto-accepts offered files into a directory, implementing
// jingle.DescriptionHandler.
type Inbox struct {
	directory string

	// Received delivers the paths of completely received files.
	Received chan string
}

// NewInbox accepting files into the given directory.
func NewInbox(directory string) (*Inbox, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	return &Inbox{
		directory: directory,
		Received:  make(chan string, 32),
	}, nil
}

func (inbox *Inbox) Namespace() string {
	return Namespace
}

/// adopt prepares a receiving transfer: the destination file is created
// in the inbox directory and closed, or removed, once the transfer ends.
func (inbox *Inbox) adopt(transfer *FileTransfer) error {
	path := filepath.Join(inbox.directory, transfer.Name())
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(inbox.directory, elements.RandomID()+"-"+transfer.Name())
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	transfer.SetDestination(file)

	go func() {
		err := transfer.Await()
		_ = file.Close()

		if err != nil {
			log.WithFields(log.Fields{
				"file":  path,
				"error": err,
			}).Warn("Inbox removes an incomplete file")

			_ = os.Remove(path)
			return
		}

		select {
		case inbox.Received <- path:
		default:
		}
	}()

	return nil
}

// NotifySessionInitiate accepts an inbound file offering session.
func (inbox *Inbox) NotifySessionInitiate(session *jingle.Session) {
	for _, content := range session.Contents() {
		transfer, ok := content.Description().(*FileTransfer)
		if !ok {
			continue
		}
		if err := inbox.adopt(transfer); err != nil {
			log.WithFields(log.Fields{
				"session": session.ID(),
				"error":   err,
			}).Warn("Inbox failed to prepare a destination file")

			session.Terminate(elements.ReasonFailedApplication, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), acceptTimeout)
	defer cancel()

	if err := session.SendAccept(ctx, session.Manager().Connection()); err != nil {
		log.WithFields(log.Fields{
			"session": session.ID(),
			"error":   err,
		}).Warn("Inbox failed to accept a session")
	}
}

// NotifyContentAdd accepts a file offered within an existing session.
func (inbox *Inbox) NotifyContentAdd(session *jingle.Session, content *jingle.Content) {
	transfer, ok := content.Description().(*FileTransfer)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), acceptTimeout)
	defer cancel()

	if err := inbox.adopt(transfer); err != nil {
		_ = session.RejectContent(ctx, session.Manager().Connection(), content)
		return
	}

	if err := session.AcceptContent(ctx, session.Manager().Connection(), content); err != nil {
		log.WithFields(log.Fields{
			"session": session.ID(),
			"content": content.Name(),
			"error":   err,
		}).Warn("Inbox failed to accept a content")
	}
}
