package internal

import "errors"

var (
	// ErrPathNotFound is returned when a search root or an explicit file is missing.
	ErrPathNotFound = errors.New("path not found")
	// ErrMalformedArchive marks an archive that could not be opened or parsed.
	// It is logged, never returned from SearchArchive.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrWorkerFault wraps the first unrecovered error of a pipeline worker.
	ErrWorkerFault = errors.New("worker fault")
)

// internal causes, never surfaced to callers
var (
	errFirstMatch  = errors.New("first match found")
	errStopArchive = errors.New("stop archive")
)
