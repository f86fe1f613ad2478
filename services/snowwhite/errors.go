package snowwhite

import "errors"

// ErrNoTargets is returned when no instance matched the environment pattern.
var ErrNoTargets = errors.New("no target instances")

// ErrDocumentResolution is returned when the logical document name cannot be
// resolved through the stack registry.
var ErrDocumentResolution = errors.New("document resolution failed")

// ErrSubmission is returned when the remote command could not be submitted.
var ErrSubmission = errors.New("command submission failed")
