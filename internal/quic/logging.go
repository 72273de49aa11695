// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "github.com/sirupsen/logrus"

// logrusLogger is the type callers inject; kept as a type alias so the rest
// of the package can depend on *logrus.Logger without every file importing
// logrus directly.
type logrusLogger = logrus.Logger

// entryLogger scopes a *logrus.Logger the way distribution's
// dctx.GetLogger/WithField chain does, but without a context.Context
// threading requirement: this core has no request-scoped context, so the
// logger is just injected once at construction.
type entryLogger struct {
	log *logrus.Logger
}

func newEntryLogger(log *logrus.Logger) *entryLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &entryLogger{log: log}
}

func (e *entryLogger) space(s NumberSpace) *logrus.Entry {
	return e.log.WithField("space", s.String())
}

func (e *entryLogger) packet(s NumberSpace, pn PacketNumber) *logrus.Entry {
	return e.space(s).WithField("packet_number", int64(pn))
}
