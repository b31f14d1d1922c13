// Package telemetry implements the optional one-way status message sink
// described in spec.md §6: a stream of tagged JSON messages reporting
// progress and errors. It is an external collaborator in spec.md's own
// terms, so this package only needs to emit well-formed messages; what
// consumes them is out of scope.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// ErrorKind enumerates the telemetry error kinds from spec.md §6.
type ErrorKind string

const (
	ErrorKindClientOffline       ErrorKind = "ClientOffline"
	ErrorKindMalformedSitemap    ErrorKind = "MalformedSitemap"
	ErrorKindVoteFetch           ErrorKind = "VoteFetch"
	ErrorKindFileFetch           ErrorKind = "FileFetch"
	ErrorKindLockStatusFetch     ErrorKind = "LockStatusFetch"
	ErrorKindForumListFetch      ErrorKind = "ForumListFetch"
	ErrorKindForumPostFetch      ErrorKind = "ForumPostFetch"
	ErrorKindFileMetaFetch       ErrorKind = "FileMetaFetch"
	ErrorKindFileUnlink          ErrorKind = "FileUnlink"
	ErrorKindForumCountMismatch  ErrorKind = "ForumCountMismatch"
	ErrorKindWikidotInternal     ErrorKind = "WikidotInternal"
	ErrorKindWhatTheFuck         ErrorKind = "WhatTheFuck"
	ErrorKindMetaMissing         ErrorKind = "MetaMissing"
	ErrorKindGivingUp            ErrorKind = "GivingUp"
	ErrorKindTokenInvalidated    ErrorKind = "TokenInvalidated"
)

// Status enumerates the Progress message's status field.
type Status string

const (
	StatusBuildingSitemap Status = "BuildingSitemap"
	StatusPagesMain       Status = "PagesMain"
	StatusForumsMain      Status = "ForumsMain"
	StatusPagesPending    Status = "PagesPending"
	StatusFilesPending    Status = "FilesPending"
	StatusCompressing     Status = "Compressing"
	StatusFatalError      Status = "FatalError"
	StatusOther           Status = "Other"
)

// Message is the envelope every telemetry event is encoded as.
type Message struct {
	Tag        string     `json:"tag"`
	Type       string     `json:"type"`
	Total      *int       `json:"total,omitempty"`
	Status     Status     `json:"status,omitempty"`
	Done       *int       `json:"done,omitempty"`
	Postponed  *int       `json:"postponed,omitempty"`
	ErrorKind  ErrorKind  `json:"errorKind,omitempty"`
	Name       string     `json:"name,omitempty"`
	ErrorStr   string     `json:"errorStr,omitempty"`
}

// Sink is a one-way telemetry destination. Send must not block the caller
// for long; implementations that talk to the network should buffer.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// WriterSink writes newline-delimited JSON messages to an io.Writer. It is
// the simplest possible Sink and is what a local debugging run wires up;
// a networked sink (e.g. over a unix socket or websocket) implements the
// same Sink interface.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a Sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// NopSink discards every message; used when no telemetry sink is configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Message) error { return nil }

func intPtr(v int) *int { return &v }

// Handshake reports that a crawl run has started.
func Handshake(tag string) Message { return Message{Tag: tag, Type: "Handshake"} }

// FinishSuccess reports that a site run completed without fatal errors.
func FinishSuccess(tag string) Message { return Message{Tag: tag, Type: "FinishSuccess"} }

// PageDone reports that one page finished processing.
func PageDone(tag string) Message { return Message{Tag: tag, Type: "PageDone"} }

// PagePostponed reports that a page's work was postponed.
func PagePostponed(tag string) Message { return Message{Tag: tag, Type: "PagePostponed"} }

// Preflight reports the total amount of work discovered before processing starts.
func Preflight(tag string, total int) Message {
	return Message{Tag: tag, Type: "Preflight", Total: intPtr(total)}
}

// Progress reports incremental progress within a phase.
func Progress(tag string, status Status, done, postponed *int) Message {
	return Message{Tag: tag, Type: "Progress", Status: status, Done: done, Postponed: postponed}
}

// ErrorFatal reports a fatal error that aborted the run.
func ErrorFatal(tag string, kind ErrorKind, name, errStr string) Message {
	return Message{Tag: tag, Type: "ErrorFatal", ErrorKind: kind, Name: name, ErrorStr: errStr}
}

// ErrorNonfatal reports a recoverable error the engine continued past.
func ErrorNonfatal(tag string, kind ErrorKind, name, errStr string) Message {
	return Message{Tag: tag, Type: "ErrorNonfatal", ErrorKind: kind, Name: name, ErrorStr: errStr}
}
