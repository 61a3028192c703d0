package types

import "context"

// TraceProvider is a generic way to get a claim value at a specific
// position in the trace. AlphabetGame is the sole implementation: a richer
// TraceAccessor/PreimageOracleData pair to support split cannon games with
// lower-layer trace providers is deliberately not modeled here, since
// cannon traces and the preimage oracle are out of scope for this agent,
// so only the single-provider shape survives here.
type TraceProvider interface {
	// Get returns the claim value at the requested position.
	Get(ctx context.Context, pos Position) (Claim, error)

	// GetStepData returns the ABI-encoded (trace_index, trace_byte) preimage
	// required to execute a step at the given position, and any proof data
	// (opaque, empty for the alphabet game).
	GetStepData(ctx context.Context, pos Position) (preimage []byte, proof []byte, err error)

	// AbsolutePreStateCommitment is the commitment of the pre-image value of
	// the trace that transitions to the trace value at index 0.
	AbsolutePreStateCommitment(ctx context.Context) (Claim, error)
}
