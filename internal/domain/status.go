package domain

// SearchState is the lifecycle phase of a search session.
type SearchState string

const (
	SearchInProgress SearchState = "in_progress"
	SearchCompleted  SearchState = "completed"
	SearchFailed     SearchState = "failed"
	SearchCancelled  SearchState = "cancelled"
)

// SearchStatus is a point-in-time snapshot of a session.
type SearchStatus struct {
	State SearchState `json:"state"`
	// FoundSoFar counts published hits while in progress.
	FoundSoFar int `json:"found_so_far,omitempty"`
	// TotalCount is the final hit count once completed.
	TotalCount int `json:"total_count,omitempty"`
	// Error describes the failure when the state is failed.
	Error string `json:"error,omitempty"`
}

// SearchMode selects how StartSearch interprets the query text.
type SearchMode string

const (
	// ModeRule treats the text as a structured query expression.
	ModeRule SearchMode = "rule"
	// ModeNatural extracts keywords from free-form text first.
	ModeNatural SearchMode = "natural"
)

// Valid reports whether the mode is a known value.
func (m SearchMode) Valid() bool {
	return m == ModeRule || m == ModeNatural
}
