// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wsconn

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"

	"github.com/jingle7/jingle7-go/pkg/jingle/elements"
)

// wsMessage describes a message which might be sent over a wsconn link.
// Implementations are available at the end of this file.
type wsMessage interface {
	// typeCode is an unique identifier for each message type.
	typeCode() uint64

	cboring.CborMarshaler
}

const (
	wsmStatusCode   uint64 = 0
	wsmHelloCode    uint64 = 1
	wsmRequestCode  uint64 = 2
	wsmResponseCode uint64 = 3
)

var wsmMapping = map[interface{}]reflect.Type{
	wsmStatusCode:   reflect.TypeOf(wsmStatus{}),
	wsmHelloCode:    reflect.TypeOf(wsmHello{}),
	wsmRequestCode:  reflect.TypeOf(wsmRequest{}),
	wsmResponseCode: reflect.TypeOf(wsmResponse{}),
}

// marshalCbor writes a wsMessage wrapped with its type code as CBOR.
func marshalCbor(wsm wsMessage, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(wsm.typeCode(), w); err != nil {
		return err
	}

	return cboring.Marshal(wsm, w)
}

// unmarshalCbor reads a new wsMessage based on its type code from CBOR.
func unmarshalCbor(r io.Reader) (wsMessage, error) {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return nil, err
	} else if l != 2 {
		return nil, fmt.Errorf("wsMessage: wrong array length: %d instead of 2", l)
	}

	code, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	t, ok := wsmMapping[code]
	if !ok {
		return nil, fmt.Errorf("wsMessage: no type known for code %d", code)
	}

	wsm := reflect.New(t).Interface().(wsMessage)
	if err := cboring.Unmarshal(wsm, r); err != nil {
		return nil, err
	}
	return wsm, nil
}

// wsmStatus acknowledges a hello; a non-empty Error refuses it.
type wsmStatus struct {
	Error string
}

func newStatusMessage(err error) *wsmStatus {
	if err != nil {
		return &wsmStatus{Error: err.Error()}
	}
	return &wsmStatus{}
}

func (m *wsmStatus) typeCode() uint64 {
	return wsmStatusCode
}

func (m *wsmStatus) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(m.Error, w)
}

func (m *wsmStatus) UnmarshalCbor(r io.Reader) error {
	s, err := cboring.ReadTextString(r)
	m.Error = s
	return err
}

// wsmHello registers the sending endpoint's address with the Hub.
type wsmHello struct {
	Address elements.Address
}

func (m *wsmHello) typeCode() uint64 {
	return wsmHelloCode
}

func (m *wsmHello) MarshalCbor(w io.Writer) error {
	return m.Address.MarshalCbor(w)
}

func (m *wsmHello) UnmarshalCbor(r io.Reader) error {
	return m.Address.UnmarshalCbor(r)
}

// wsmRequest carries a negotiation Message; the Hub routes it by the
// Message's To address.
type wsmRequest struct {
	Msg *elements.Message
}

func (m *wsmRequest) typeCode() uint64 {
	return wsmRequestCode
}

func (m *wsmRequest) MarshalCbor(w io.Writer) error {
	return m.Msg.MarshalCbor(w)
}

func (m *wsmRequest) UnmarshalCbor(r io.Reader) error {
	m.Msg = new(elements.Message)
	return m.Msg.UnmarshalCbor(r)
}

// wsmResponse carries a Response back to the requester named in To.
type wsmResponse struct {
	To   elements.Address
	Resp *elements.Response
}

func (m *wsmResponse) typeCode() uint64 {
	return wsmResponseCode
}

func (m *wsmResponse) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := m.To.MarshalCbor(w); err != nil {
		return err
	}
	return m.Resp.MarshalCbor(w)
}

func (m *wsmResponse) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("wsmResponse: wrong array length: %d instead of 2", l)
	}

	if err := m.To.UnmarshalCbor(r); err != nil {
		return err
	}

	m.Resp = new(elements.Response)
	return m.Resp.UnmarshalCbor(r)
}
