// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filetransfer

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ulikunitz/xz"

	"github.com/jingle7/jingle7-go/pkg/jingle"
	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// FileTransfer is a file offering description: the offering side streams
// a source reader, the receiving side writes into a destination and
// verifies the announced digest.
type FileTransfer struct {
	el *DescriptionElement

	mutex  sync.Mutex
	parent *jingle.Content

	// source is set on the offering side, destination on the receiver.
	source      io.Reader
	destination io.Writer

	doneOnce sync.Once
	done     chan error
}

// NewOffer describes an outgoing file transfer. The digest must cover
// the uncompressed source bytes.
func NewOffer(el *DescriptionElement, source io.Reader) *FileTransfer {
	return &FileTransfer{
		el:     el,
		source: source,
		done:   make(chan error, 1),
	}
}

// OfferFile describes an outgoing transfer of a file on disk, computing
// its size and digest. compressed enables xz compression on the wire.
func OfferFile(path, mediaType string, compressed bool) (*FileTransfer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	digest := sha256.New()
	size, err := io.Copy(digest, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, err
	}

	el := &DescriptionElement{
		Name:       filepath.Base(path),
		Size:       uint64(size),
		MediaType:  mediaType,
		Hash:       digest.Sum(nil),
		Compressed: compressed,
	}
	return NewOffer(el, file), nil
}

// fromElement revives the receiving counterpart of an offered file.
func fromElement(el *DescriptionElement) *FileTransfer {
	return &FileTransfer{
		el:   el,
		done: make(chan error, 1),
	}
}

func (transfer *FileTransfer) Namespace() string {
	return Namespace
}

func (transfer *FileTransfer) Element() elements.DescriptionElement {
	return transfer.el
}

func (transfer *FileTransfer) SetParent(content *jingle.Content) {
	transfer.mutex.Lock()
	defer transfer.mutex.Unlock()

	transfer.parent = content
}

// SetDestination sets the writer receiving the transferred bytes. It
// must be called before the byte stream establishes.
func (transfer *FileTransfer) SetDestination(destination io.Writer) {
	transfer.mutex.Lock()
	defer transfer.mutex.Unlock()

	transfer.destination = destination
}

// Name of the offered file, cleaned of any path components.
func (transfer *FileTransfer) Name() string {
	return filepath.Base(transfer.el.Name)
}

// Await blocks until the transfer finished and returns its outcome.
func (transfer *FileTransfer) Await() error {
	return <-transfer.done
}

func (transfer *FileTransfer) finish(err error) {
	transfer.doneOnce.Do(func() {
		transfer.done <- err

		transfer.mutex.Lock()
		parent := transfer.parent
		transfer.mutex.Unlock()

		if parent == nil {
			return
		}
		if err != nil {
			parent.OnContentCancel()
		} else {
			parent.OnContentFinished()
		}
	})
}

// OnBytestreamReady runs the transfer on the established byte stream.
func (transfer *FileTransfer) OnBytestreamReady(session jingle.BytestreamSession) {
	transfer.mutex.Lock()
	source := transfer.source
	transfer.mutex.Unlock()

	var err error
	if source != nil {
		err = transfer.send(session, source)
	} else {
		err = transfer.receive(session)
	}

	if err != nil {
		log.WithFields(log.Fields{
			"transfer": transfer,
			"error":    err,
		}).Warn("File transfer failed")
	}
	transfer.finish(err)
}

func (transfer *FileTransfer) send(session jingle.BytestreamSession, source io.Reader) error {
	var sink io.Writer = session

	var xzWriter *xz.Writer
	if transfer.el.Compressed {
		var err error
		if xzWriter, err = xz.NewWriter(session); err != nil {
			return err
		}
		sink = xzWriter
	}

	if _, err := io.Copy(sink, source); err != nil {
		return err
	}
	if xzWriter != nil {
		if err := xzWriter.Close(); err != nil {
			return err
		}
	}
	return session.Close()
}

func (transfer *FileTransfer) receive(session jingle.BytestreamSession) error {
	transfer.mutex.Lock()
	destination := transfer.destination
	transfer.mutex.Unlock()

	if destination == nil {
		return fmt.Errorf("no destination set for %v", transfer)
	}

	var tap io.Reader = session
	if transfer.el.Compressed {
		xzReader, err := xz.NewReader(session)
		if err != nil {
			return err
		}
		tap = xzReader
	}
	tap = io.LimitReader(tap, int64(transfer.el.Size))

	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(destination, digest), tap)
	if err != nil {
		return err
	}

	if uint64(n) != transfer.el.Size {
		return fmt.Errorf("received %d bytes instead of %d", n, transfer.el.Size)
	}
	if !bytes.Equal(digest.Sum(nil), transfer.el.Hash) {
		return fmt.Errorf("digest mismatch for %s", transfer.Name())
	}
	return nil
}

// HandleDescriptionInfo rejects all infos; a transfer is fully described
// by its initial element.
func (transfer *FileTransfer) HandleDescriptionInfo(_ elements.DescriptionElement, msg *elements.Message) *elements.Response {
	return elements.ErrorOf(msg, elements.ConditionFeatureNotImplemented)
}

// HandleContentTerminate unblocks Await when the session ends before the
// transfer completed.
func (transfer *FileTransfer) HandleContentTerminate(reason elements.Reason) {
	if reason == elements.ReasonSuccess {
		transfer.doneOnce.Do(func() { transfer.done <- nil })
		return
	}
	transfer.doneOnce.Do(func() {
		transfer.done <- fmt.Errorf("transfer terminated: %s", reason)
	})
}

func (transfer *FileTransfer) String() string {
	return fmt.Sprintf("FileTransfer(%s,%d bytes)", transfer.el.Name, transfer.el.Size)
}
