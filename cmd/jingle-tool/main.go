// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// jingle-tool is a command line companion: it offers single files to a
// peer or exchanges a whole directory over a signalling hub.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// printFatal prints the error with additional messages and exits afterwards.
func printFatal(err error, msg string) {
	log.WithError(err).Fatal(msg)
}

// printUsage of jingle-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s send|exchange:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s send websocket address peer filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Offers the given file to peer, registered as address on the hub behind\n")
	_, _ = fmt.Fprintf(os.Stderr, "  the websocket URL, and waits until the transfer finished.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s exchange websocket address peer directory\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s registers itself as address on the given websocket and stores\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  received files in directory/inbox. If the user drops a new file in\n")
	_, _ = fmt.Fprintf(os.Stderr, "  directory/outbox, it will be offered to the peer.\n\n")

	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "send":
		sendFile(os.Args[2:])

	case "exchange":
		startExchange(os.Args[2:])

	default:
		printUsage()
	}
}
