package ingest

import "errors"

// Pipeline failure taxonomy. Callers classify failures with errors.Is;
// everything here is dead-lettered before being returned.
var (
	// ErrInvalidSignature is the auth boundary failure, surfaced as
	// unauthorized to the caller.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload marks a body that is not valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnsupportedPayload marks valid JSON of an unrecognized shape.
	ErrUnsupportedPayload = errors.New("unsupported payload shape")

	// ErrEmbeddingContract marks an upstream embedding contract violation
	// (vector count mismatch), which is fatal rather than retryable.
	ErrEmbeddingContract = errors.New("embedding contract violation")

	// ErrDurableWrite marks a failed durable upsert. Correctness requires
	// durability before index sync, so this aborts the call.
	ErrDurableWrite = errors.New("durable write failed")
)
