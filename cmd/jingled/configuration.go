// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/jingle7/jingle7-go/pkg/discovery"
	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/description/filetransfer"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
	"github.com/jingle7/jingle7-go/pkg/jingle/security/xchacha"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/direct"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/inband"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/quict"
	"github.com/jingle7/jingle7-go/pkg/journal"
	"github.com/jingle7/jingle7-go/pkg/wsconn"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Endpoint  endpointConf
	Logging   logConf
	Hub       hubConf
	Transport []transportConf
	Security  securityConf
	Journal   journalConf
	Discovery discoveryConf
}

// endpointConf describes the Endpoint-configuration block.
type endpointConf struct {
	Address string
	Inbox   string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// hubConf describes the Hub-configuration block. With serve enabled this
// daemon runs its own signalling hub on listen; url is the hub this
// endpoint connects to, defaulting to the own hub.
type hubConf struct {
	Serve  bool
	Listen string
	URL    string `toml:"url"`
}

// transportConf describes one Transport-configuration block.
type transportConf struct {
	Protocol  string
	Listen    string
	Advertise string
	Priority  int
}

// securityConf describes the Security-configuration block. A non-empty
// hex psk enables the xchacha security layer for inbound contents.
type securityConf struct {
	PSK string `toml:"psk"`
}

// journalConf describes the Journal-configuration block.
type journalConf struct {
	Directory   string
	CleanupDays uint `toml:"cleanup-days"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// daemon bundles every component started from a configuration.
type daemon struct {
	manager *jingle.Manager
	client  *wsconn.Client
	inbox   *filetransfer.Inbox

	hub       *wsconn.Hub
	hubServer *http.Server

	journal   *journal.Journal
	discovery *discovery.Manager
}

// configureLogging applies the Logging-configuration block.
func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseTransport registers one Transport-configuration block.
func parseTransport(conf transportConf, manager *jingle.Manager) error {
	switch conf.Protocol {
	case "inband":
		transports := inband.NewManager(conf.Priority)
		manager.RegisterTransportAdapter(transports)
		manager.RegisterTransportManager(transports)

	case "direct":
		if conf.Listen == "" {
			return fmt.Errorf("direct transport needs a listen address")
		}
		transports := direct.NewManager(conf.Listen, conf.Advertise, conf.Priority)
		manager.RegisterTransportAdapter(transports)
		manager.RegisterTransportManager(transports)

	case "quict":
		if conf.Listen == "" {
			return fmt.Errorf("quict transport needs a listen address")
		}
		transports := quict.NewManager(conf.Listen, conf.Advertise, conf.Priority)
		manager.RegisterTransportAdapter(transports)
		manager.RegisterTransportManager(transports)

	default:
		return fmt.Errorf("unknown transport.protocol %q", conf.Protocol)
	}
	return nil
}

// dialHub connects to the signalling hub, retrying shortly since the own
// hub might still be starting.
func dialHub(url string, address elements.Address) (client *wsconn.Client, err error) {
	for i := 0; i < 5; i++ {
		if client, err = wsconn.Dial(url, address); err == nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	return
}

// parseDaemon creates the daemon based on the given TOML configuration.
func parseDaemon(filename string) (*daemon, error) {
	var conf tomlConfig
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return nil, err
	}

	configureLogging(conf.Logging)

	address, err := elements.NewAddress(conf.Endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("endpoint.address: %w", err)
	}

	d := &daemon{}

	// Hub
	hubURL := conf.Hub.URL
	if conf.Hub.Serve {
		d.hub = wsconn.NewHub()
		d.hubServer = &http.Server{
			Addr:    conf.Hub.Listen,
			Handler: d.hub.Router(),
		}

		go func() {
			if err := d.hubServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Fatal("Hub server failed")
			}
		}()

		if hubURL == "" {
			hubURL = "ws://" + conf.Hub.Listen + "/ws"
		}
	}
	if hubURL == "" {
		return nil, fmt.Errorf("hub.url is empty and hub.serve is disabled")
	}

	if d.client, err = dialHub(hubURL, address); err != nil {
		return nil, fmt.Errorf("connecting to the hub failed: %w", err)
	}

	d.manager = jingle.NewManager(d.client)

	// Transports
	if len(conf.Transport) == 0 {
		conf.Transport = []transportConf{{Protocol: "inband"}}
	}
	for _, transportConf := range conf.Transport {
		if err := parseTransport(transportConf, d.manager); err != nil {
			return nil, err
		}
	}

	// Security
	if conf.Security.PSK != "" {
		psk, pskErr := hex.DecodeString(conf.Security.PSK)
		if pskErr != nil {
			return nil, fmt.Errorf("security.psk is no hex string: %w", pskErr)
		}
		d.manager.RegisterSecurityAdapter(xchacha.NewAdapter(psk))
	}

	// File transfers
	d.manager.RegisterDescriptionAdapter(filetransfer.Adapter{})
	if conf.Endpoint.Inbox != "" {
		if d.inbox, err = filetransfer.NewInbox(conf.Endpoint.Inbox); err != nil {
			return nil, err
		}
		d.manager.RegisterDescriptionHandler(d.inbox)
	}

	// Journal
	if conf.Journal.Directory != "" {
		if d.journal, err = journal.NewJournal(conf.Journal.Directory); err != nil {
			return nil, err
		}

		d.manager.RegisterSessionObserver(func(session *jingle.Session) {
			if err := d.journal.Track(session); err != nil {
				log.WithFields(log.Fields{
					"session": session.ID(),
					"error":   err,
				}).Warn("Journalling a session failed")
			}
		})

		if conf.Journal.CleanupDays > 0 {
			cutoff := time.Duration(conf.Journal.CleanupDays) * 24 * time.Hour
			d.journal.DeleteOlderThan(time.Now().Add(-cutoff))
		}
	}

	// Discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 10
		}

		var hubPort uint
		if conf.Hub.Serve {
			if _, portStr, splitErr := net.SplitHostPort(conf.Hub.Listen); splitErr == nil {
				if port, portErr := strconv.Atoi(portStr); portErr == nil {
					hubPort = uint(port)
				}
			}
		}

		announcements := []discovery.Announcement{{Address: address, Port: hubPort}}
		notify := func(announcement discovery.Announcement, host string) {
			log.WithFields(log.Fields{
				"peer": announcement.Address,
				"host": host,
				"port": announcement.Port,
			}).Info("Discovered an endpoint")
		}

		d.discovery, err = discovery.NewManager(
			address, notify, announcements,
			time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"endpoint": address,
		"hub":      hubURL,
	}).Info("Daemon is up")

	return d, nil
}

// close every component in reverse start order.
func (d *daemon) close() error {
	var err *multierror.Error

	if d.discovery != nil {
		d.discovery.Close()
	}

	if closeErr := d.manager.Close(); closeErr != nil {
		err = multierror.Append(err, closeErr)
	}

	if d.journal != nil {
		if closeErr := d.journal.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}

	if d.hubServer != nil {
		if closeErr := d.hubServer.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}

	return err.ErrorOrNil()
}
