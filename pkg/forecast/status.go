package forecast

import "time"

// Status is the lifecycle state of a tracked forecast request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Record is a row of the request-tracking ledger.
type Record struct {
	ID          string    `json:"request_id"`
	HorizonDays int       `json:"horizon_days"`
	CacheKey    string    `json:"cache_key"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Disposition says how the dispatcher answered a request.
type Disposition int

const (
	// Cached means the payload was served from the result cache.
	Cached Disposition = iota
	// Accepted means a background computation is running for the request.
	Accepted
)

// Result is the synchronous answer of a dispatch call.
type Result struct {
	Disposition Disposition
	CacheKey    string
	RequestID   string
	Points      []Point
}

// Page bounds a listing. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}
