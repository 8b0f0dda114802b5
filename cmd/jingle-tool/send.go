// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/description/filetransfer"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/inband"
	"github.com/jingle7/jingle7-go/pkg/wsconn"
)

// connect to the signalling hub and prepare a Manager for file transfers.
func connect(websocketAddr string, address elements.Address) (*wsconn.Client, *jingle.Manager, error) {
	client, err := wsconn.Dial(websocketAddr, address)
	if err != nil {
		return nil, nil, err
	}

	manager := jingle.NewManager(client)
	manager.RegisterDescriptionAdapter(filetransfer.Adapter{})

	transports := inband.NewManager(0)
	manager.RegisterTransportAdapter(transports)
	manager.RegisterTransportManager(transports)

	return client, manager, nil
}

// offerFile proposes one file to peer and returns the pending transfer.
func offerFile(manager *jingle.Manager, peer elements.Address, filename string) (*filetransfer.FileTransfer, error) {
	offer, err := filetransfer.OfferFile(filename, "application/octet-stream", false)
	if err != nil {
		return nil, err
	}

	content := jingle.NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(offer)

	session := manager.NewSession(peer)
	session.AddContent(content)

	transport, err := manager.TransportManager(inband.Namespace).NewTransportForInitiator(content)
	if err != nil {
		return nil, err
	}
	content.SetTransport(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := session.SendInitiate(ctx, manager.Connection()); err != nil {
		return nil, err
	}
	return offer, nil
}

// sendFile for the "send" CLI option.
func sendFile(args []string) {
	if len(args) != 4 {
		printUsage()
	}

	var (
		websocketAddr = args[0]
		addressStr    = args[1]
		peerStr       = args[2]
		filename      = args[3]
	)

	address, err := elements.NewAddress(addressStr)
	if err != nil {
		printFatal(err, "Parsing own address errored")
	}
	peer, err := elements.NewAddress(peerStr)
	if err != nil {
		printFatal(err, "Parsing peer address errored")
	}

	_, manager, err := connect(websocketAddr, address)
	if err != nil {
		printFatal(err, "Connecting to the hub errored")
	}

	offer, err := offerFile(manager, peer, filename)
	if err != nil {
		printFatal(err, "Offering file errored")
	}

	if err := offer.Await(); err != nil {
		printFatal(err, "Transfer errored")
	}

	log.WithFields(log.Fields{
		"file": filename,
		"peer": peer,
	}).Info("Sent file")

	if err := manager.Close(); err != nil {
		log.WithError(err).Warn("Closing the connection errored")
	}
}
