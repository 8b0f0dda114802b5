// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// jingled is the negotiation endpoint daemon: it connects to a
// signalling hub, or serves its own, auto-accepts offered files into an
// inbox and journals every session.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	d, err := parseDaemon(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	waitSigint()
	log.Info("Shutting down..")

	if err := d.close(); err != nil {
		log.WithError(err).Warn("Shutdown errored")
	}
}
