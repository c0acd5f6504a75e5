package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Actor identifies an agent on the wire.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lease describes the current holder of a record.
type Lease struct {
	RecordID         int64  `json:"recordId"`
	Kind             string `json:"kind"`
	Filter           int    `json:"filter"`
	Owner            Actor  `json:"owner"`
	AcquiredAt       string `json:"acquiredAt"`
	ExpiresAt        string `json:"expiresAt"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

// Record is the transport form of a record row.
type Record struct {
	ID            int64  `json:"id"`
	Agent         string `json:"agent"`
	Group         string `json:"group,omitempty"`
	Visibility    string `json:"visibility,omitempty"`
	Status        string `json:"status"`
	CurrentFilter int    `json:"currentFilter"`
	NextDueAt     string `json:"nextDueAt,omitempty"`
	CancelReason  string `json:"cancelReason,omitempty"`
	CancelledBy   string `json:"cancelledBy,omitempty"`
	CancelledAt   string `json:"cancelledAt,omitempty"`
	FinalizedAt   string `json:"finalizedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Filter is one of a record's three filters plus its sequencing state.
type Filter struct {
	N            int    `json:"n"`
	Status       string `json:"status"`
	PerformedBy  *Actor `json:"performedBy,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	NextDueAt    string `json:"nextDueAt,omitempty"`
	CancelReason string `json:"cancelReason,omitempty"`
	Blocked      bool   `json:"blocked"`
	BlockReason  string `json:"blockReason,omitempty"`
}

// RecordSummary is one row of the record list.
type RecordSummary struct {
	Record
	Lease *Lease `json:"lease,omitempty"`
}

// RecordDetail is a record with its filters and lease.
type RecordDetail struct {
	Record       Record   `json:"record"`
	Filters      []Filter `json:"filters"`
	Lease        *Lease   `json:"lease,omitempty"`
	NextEligible int      `json:"nextEligible,omitempty"`
}

// RecordListResponse wraps the record list.
type RecordListResponse struct {
	Records []RecordSummary `json:"records"`
}

// RecordDetailResponse wraps a record detail.
type RecordDetailResponse struct {
	Detail RecordDetail `json:"detail"`
}

// LeaseResponse wraps a renewed lease.
type LeaseResponse struct {
	Lease Lease `json:"lease"`
}

// StatsResponse carries record counts by status.
type StatsResponse struct {
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	ActiveLeases int            `json:"activeLeases"`
}

// HealthResponse is returned by the unauthenticated health probe.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// CreateRecordRequest creates a draft record.
type CreateRecordRequest struct {
	Agent      string `json:"agent"`
	Group      string `json:"group,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	NextDueAt  string `json:"nextDueAt,omitempty"`
}

// FinishRequest completes a filter. A nil NextDueMinutes clears the due time.
type FinishRequest struct {
	NextDueMinutes *int `json:"nextDueMinutes,omitempty"`
}

// CancelRequest cancels a record.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed operation. Conflict and validation errors
// carry the record's state at the time of the failure.
type ErrorBody struct {
	Kind    string   `json:"kind"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  string   `json:"status,omitempty"`
	Filters []string `json:"filters,omitempty"`
	Holder  *Lease   `json:"holder,omitempty"`
}

// DatabaseHealth reports store diagnostics.
type DatabaseHealth struct {
	Driver         string `json:"driver"`
	Target         string `json:"target"`
	Readable       bool   `json:"readable"`
	SchemaVersion  int    `json:"schemaVersion"`
	IntegrityCheck bool   `json:"integrityCheck"`
	TotalRecords   int    `json:"totalRecords"`
	ActiveLeases   int    `json:"activeLeases"`
	Error          string `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running              bool           `json:"running"`
	PID                  int            `json:"pid"`
	LockFilePath         string         `json:"lockFilePath"`
	LeaseTTLSeconds      int            `json:"leaseTtlSeconds"`
	SweepIntervalSeconds int            `json:"sweepIntervalSeconds"`
	Database             DatabaseHealth `json:"database"`
	Stats                StatsResponse  `json:"stats"`
}
