package archive

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error classes for the archiver. Callers classify with Class.Has.
var (
	// ErrTransport covers network, DNS, TLS, deadline and unexpected status failures.
	ErrTransport = errs.Class("transport")
	// ErrDecode is returned when a response body is not well-formed.
	ErrDecode = errs.Class("decode")
	// ErrNotFound is returned when a blob or remote file is absent.
	ErrNotFound = errs.Class("not found")
	// ErrPersistence wraps relational store failures.
	ErrPersistence = errs.Class("persistence")
	// ErrStorage wraps blob store failures.
	ErrStorage = errs.Class("storage")
	// ErrConfiguration is returned for configuration the remote cannot serve.
	ErrConfiguration = errs.Class("configuration")
)

// StatusError reports a response status the client has no result variant for.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
