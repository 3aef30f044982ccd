package internalerr

import "errors"

// Sentinel errors for the pipeline stages.
//
// Precondition errors (parse, selection, schema, configuration) abort the
// stage that returns them. Row-level errors (ErrRowEnrichment and the remote
// and response errors it usually wraps) are recovered by the enrichment
// runner and only reported.
var (
	ErrParse                  = errors.New("parse error")
	ErrEmptySelection         = errors.New("empty column selection")
	ErrUnknownColumn          = errors.New("unknown column")
	ErrDuplicateColumn        = errors.New("duplicate column")
	ErrMissingIdentifier      = errors.New("missing identifier column")
	ErrMissingSentimentColumn = errors.New("missing enrichment column")

	ErrRowEnrichment = errors.New("row enrichment failed")
	ErrRemoteService = errors.New("remote service error")
	ErrRateLimited   = errors.New("rate limited")
	ErrModelLoading  = errors.New("model loading")
	ErrResponseParse = errors.New("malformed model response")

	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNotFound          = errors.New("not found")
)
