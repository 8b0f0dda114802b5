// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wsconn

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/description/filetransfer"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
	"github.com/jingle7/jingle7-go/pkg/jingle/transport/inband"
)

// echoHandler acknowledges every request.
type echoHandler struct{}

func (echoHandler) HandleMessage(msg *elements.Message) *elements.Response {
	return elements.ResultOf(msg)
}

func newTestHub(t *testing.T) (hub *Hub, wsURL string) {
	t.Helper()

	hub = NewHub()
	server := httptest.NewServer(hub.Router())
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dialOrFail(t *testing.T, url string, address elements.Address) *Client {
	t.Helper()

	client, err := Dial(url, address)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestHubRoutesRequests(t *testing.T) {
	hub, url := newTestHub(t)

	alice := dialOrFail(t, url, elements.MustNewAddress("alice@example.org/desk"))
	bob := dialOrFail(t, url, elements.MustNewAddress("bob@example.org/mobile"))
	bob.RegisterRequestHandler(echoHandler{})

	if l := len(hub.Addresses()); l != 2 {
		t.Fatalf("expected 2 registered endpoints, got %d", l)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := elements.NewSessionTerminate(alice.LocalAddress(), bob.LocalAddress(), "sid-1",
		elements.NewReasonElement(elements.ReasonCancel))

	resp, err := alice.SendRequest(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected error response: %v", resp.Condition)
	}
}

func TestHubBouncesUnknownEndpoint(t *testing.T) {
	_, url := newTestHub(t)

	alice := dialOrFail(t, url, elements.MustNewAddress("alice@example.org/desk"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := elements.NewSessionTerminate(alice.LocalAddress(),
		elements.MustNewAddress("nobody@example.org/void"), "sid-2",
		elements.NewReasonElement(elements.ReasonCancel))

	resp, err := alice.SendRequest(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsError() || resp.Condition != elements.ConditionItemNotFound {
		t.Fatalf("expected item-not-found, got %v", resp)
	}
}

func TestHubRefusesDuplicateAddress(t *testing.T) {
	_, url := newTestHub(t)

	address := elements.MustNewAddress("alice@example.org/desk")
	dialOrFail(t, url, address)

	if _, err := Dial(url, address); err == nil {
		t.Fatal("expected the duplicate registration to be refused")
	}
}

// TestFileTransferOverHub negotiates a complete file transfer between
// two endpoints: in-band transport, auto-accepting inbox, all
// signalling relayed by the Hub.
func TestFileTransferOverHub(t *testing.T) {
	_, url := newTestHub(t)

	aliceConn := dialOrFail(t, url, elements.MustNewAddress("alice@example.org/desk"))
	bobConn := dialOrFail(t, url, elements.MustNewAddress("bob@example.org/mobile"))

	managerAlice := jingle.NewManager(aliceConn)
	managerBob := jingle.NewManager(bobConn)

	for _, manager := range []*jingle.Manager{managerAlice, managerBob} {
		transports := inband.NewManager(0)
		manager.RegisterDescriptionAdapter(filetransfer.Adapter{})
		manager.RegisterTransportAdapter(transports)
		manager.RegisterTransportManager(transports)
	}

	inbox, err := filetransfer.NewInbox(filepath.Join(t.TempDir(), "inbox"))
	if err != nil {
		t.Fatal(err)
	}
	managerBob.RegisterDescriptionHandler(inbox)

	payload := bytes.Repeat([]byte("end to end payload "), 1024)
	source := filepath.Join(t.TempDir(), "offered.bin")
	if err := os.WriteFile(source, payload, 0644); err != nil {
		t.Fatal(err)
	}

	offer, err := filetransfer.OfferFile(source, "application/octet-stream", false)
	if err != nil {
		t.Fatal(err)
	}

	content := jingle.NewContent(elements.CreatorInitiator, elements.SendersInitiator)
	content.SetDescription(offer)

	session := managerAlice.NewSession(bobConn.LocalAddress())
	session.AddContent(content)

	transport, err := managerAlice.TransportManager(inband.Namespace).NewTransportForInitiator(content)
	if err != nil {
		t.Fatal(err)
	}
	content.SetTransport(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := session.SendInitiate(ctx, aliceConn); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-inbox.Received:
		received, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(received, payload) {
			t.Fatal("received file differs from the offered one")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the transferred file")
	}

	if err := offer.Await(); err != nil {
		t.Fatal(err)
	}
}
