// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "io"

// BytestreamSession is the established byte stream a successful transport
// negotiation hands over to the content's Description, or to its Security
// for wrapping first.
type BytestreamSession interface {
	io.Reader
	io.Writer
	io.Closer
}
