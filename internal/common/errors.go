package common

import "errors"

// Error kinds surfaced by the resolution pipeline. Callers classify with
// errors.Is; repositories wrap the underlying driver error.
var (
	// ErrNotFound maps a missing row (profile, tenant, membership).
	ErrNotFound = errors.New("not found")

	// ErrIdentityUnknown means a session event referenced an identity the
	// identity store no longer recognizes. Fatal for the attempt.
	ErrIdentityUnknown = errors.New("identity unknown")

	// ErrStoreUnavailable is a transient data-store failure. Surfaced to the
	// caller, never retried here.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDuplicateProfile is a uniqueness conflict on profile auto-creation.
	// Recovered locally by re-reading the winner's row.
	ErrDuplicateProfile = errors.New("duplicate profile")

	// ErrNoTenantAvailable means the directory holds no tenant the bootstrap
	// fallback could assign.
	ErrNoTenantAvailable = errors.New("no tenant available")

	// ErrTenantResolution classifies any data-access failure during tenant
	// resolution. Always surfaced as needs_tenant_selection with no
	// candidates, never as a silent grant.
	ErrTenantResolution = errors.New("tenant resolution failed")

	// ErrInvalidCandidate rejects a tenant selection outside the last
	// computed candidate set. Programming error on the caller's side.
	ErrInvalidCandidate = errors.New("tenant not in candidate set")

	// ErrAuthRejected is a terminal authentication failure (bad credentials,
	// unconfirmed email). The session stays unauthenticated.
	ErrAuthRejected = errors.New("authentication rejected")
)
