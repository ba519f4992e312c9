package domain

import "errors"

// ErrNotFound indicates the target entity id is absent from the document.
var ErrNotFound = errors.New("not found")

// ErrInvalid indicates a request that can never succeed as written, such as
// a task without a title.
var ErrInvalid = errors.New("invalid request")

// ErrConflict indicates that the document store rejected a write because a
// newer revision is already persisted.
var ErrConflict = errors.New("revision conflict")

// ErrParse indicates a response or stored document was not valid JSON or
// valid UTF-8.
var ErrParse = errors.New("parse failure")

// ErrMisconfigured indicates the server is missing a required credential or
// setting. Mutations fail deterministically and are not retried.
var ErrMisconfigured = errors.New("server not configured")
