// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/description/filetransfer"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// exchange files with a peer over the filesystem: the outbox
// subdirectory is watched for new files to offer, received files appear
// in the inbox subdirectory.
type exchange struct {
	outbox     string
	peer       elements.Address
	knownFiles sync.Map

	manager *jingle.Manager
	inbox   *filetransfer.Inbox
	watcher *fsnotify.Watcher

	closeChan chan os.Signal
}

// startExchange for the "exchange" CLI option.
func startExchange(args []string) {
	if len(args) != 4 {
		printUsage()
	}

	var (
		websocketAddr = args[0]
		addressStr    = args[1]
		peerStr       = args[2]
		directory     = args[3]

		err error
	)

	address, err := elements.NewAddress(addressStr)
	if err != nil {
		printFatal(err, "Parsing own address errored")
	}

	ex := &exchange{
		outbox:    filepath.Join(directory, "outbox"),
		closeChan: make(chan os.Signal, 1),
	}

	if ex.peer, err = elements.NewAddress(peerStr); err != nil {
		printFatal(err, "Parsing peer address errored")
	}

	signal.Notify(ex.closeChan, os.Interrupt)

	if _, ex.manager, err = connect(websocketAddr, address); err != nil {
		printFatal(err, "Connecting to the hub errored")
	}

	if ex.inbox, err = filetransfer.NewInbox(filepath.Join(directory, "inbox")); err != nil {
		printFatal(err, "Creating inbox errored")
	}
	ex.manager.RegisterDescriptionHandler(ex.inbox)

	if err = os.MkdirAll(ex.outbox, 0755); err != nil {
		printFatal(err, "Creating outbox errored")
	}

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		printFatal(err, "Starting file watcher errored")
	}
	if err = ex.watcher.Add(ex.outbox); err != nil {
		printFatal(err, "Adding outbox to file watcher errored")
	}

	ex.handler()
}

func (ex *exchange) handler() {
	defer func() {
		_ = ex.watcher.Close()
		if err := ex.manager.Close(); err != nil {
			log.WithError(err).Warn("Closing the connection errored")
		}
	}()

	for {
		select {
		case <-ex.closeChan:
			log.Info("Received interrupt signal")
			return

		case e, ok := <-ex.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if _, ok := ex.knownFiles.Load(e.Name); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			ex.offerNewFile(e)

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
			return

		case path, ok := <-ex.inbox.Received:
			if !ok {
				log.Error("Inbox channel was closed")
				return
			}

			log.WithField("file", path).Info("Saved received file")
		}
	}
}

// offerNewFile offers a freshly dropped file to the peer, retrying since
// the file may still be written when its creation event arrives.
func (ex *exchange) offerNewFile(e fsnotify.Event) {
	for i := 0; i < 5; i++ {
		if offer, err := offerFile(ex.manager, ex.peer, e.Name); err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("Offering file errored, retrying..")
		} else {
			ex.knownFiles.Store(e.Name, struct{}{})

			go func() {
				if err := offer.Await(); err != nil {
					log.WithError(err).WithField("file", e.Name).Error("Transfer errored")
				} else {
					log.WithFields(log.Fields{
						"file": e.Name,
						"peer": ex.peer,
					}).Info("Sent file")
				}
			}()
			return
		}

		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)
	}

	log.WithField("file", e.Name).Error("Failed to process file, giving up.")
}
