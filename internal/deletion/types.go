// Package deletion implements hard deletion of a PromoSuite account: authorization,
// a best-effort sweep of user-owned collections, removal of the auth identity and the
// aggregated report returned to the caller.
package deletion

import (
	"time"

	"promosuite.app/internal/config"
)

// Status is the result of sweeping one collection.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNoData      Status = "no_data"
	StatusAccessError Status = "access_error"
	StatusFailed      Status = "failed"
	StatusException   Status = "exception"
	StatusNotFound    Status = "not_found"
)

// Strategy names the identity removal path that succeeded.
type Strategy string

const (
	StrategyStandard   Strategy = "standard"
	StrategyForced     Strategy = "forced"
	StrategyPrivileged Strategy = "privileged-function"
)

// ResourceSpec is one configured (collection, owner key) pair.
type ResourceSpec = config.Resource

// Request is built per call from the HTTP request and never stored.
type Request struct {
	TargetUserID     string
	BearerCredential string
}

// ResourceOutcome records what happened to one collection.
type ResourceOutcome struct {
	Collection  string `json:"collection"`
	Status      Status `json:"status"`
	RecordCount *int64 `json:"record_count,omitempty"`
	Error       string `json:"error,omitempty"`
	// Method is set when the entry came from the privileged routine rather than the sweep.
	Method string `json:"method,omitempty"`
}

// IdentityOutcome records whether the auth identity was removed and how.
type IdentityOutcome struct {
	Deleted     bool         `json:"deleted"`
	Strategy    Strategy     `json:"strategy,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Diagnostics carries what an operator needs to finish a failed identity removal by hand.
type Diagnostics struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary counts successful collections out of all reported ones.
type Summary struct {
	SuccessCount int `json:"success_count"`
	TotalCount   int `json:"total_count"`
}

// Report is the single result of a deletion run.
type Report struct {
	Outcomes []ResourceOutcome `json:"outcomes"`
	Identity IdentityOutcome   `json:"identity"`
	Summary  Summary           `json:"summary"`
	Message  string            `json:"message"`
}

func count(n int64) *int64 { return &n }
