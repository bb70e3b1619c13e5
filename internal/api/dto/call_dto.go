package dto

// CreateCallRequest is the POST /api/v1/calls body. The endpoint fields
// mirror the call file format; optional numeric fields stay nil when unset.
type CreateCallRequest struct {
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
	Channel        string            `json:"channel" binding:"required"`
	CallerID       string            `json:"caller_id"`
	Account        string            `json:"account"`
	MaxRetries     *int              `json:"max_retries"`
	RetryTime      *int              `json:"retry_time"`
	WaitTime       *int              `json:"wait_time"`
	Variables      map[string]string `json:"variables"`
	Action         ActionRequest     `json:"action" binding:"required"`
	Archive        bool              `json:"archive"`

	// ScheduledAt is RFC3339; the call file is delivered with this
	// modification time so the telephony server defers the dial.
	ScheduledAt string `json:"scheduled_at"`
}

// ActionRequest is the tagged post-connect directive of a call request.
type ActionRequest struct {
	Type        string `json:"type" binding:"required"` // application | dialplan
	Application string `json:"application"`
	Data        string `json:"data"`
	Context     string `json:"context"`
	Extension   string `json:"extension"`
	Priority    int    `json:"priority"`
}

// ListCallsRequest carries the GET /api/v1/calls query parameters.
type ListCallsRequest struct {
	Status   string `form:"status"`
	Channel  string `form:"channel"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListCallsResponse is the paginated call listing.
type ListCallsResponse struct {
	Calls      []CallDTO `json:"calls"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// CallDTO is the external representation of a call row.
type CallDTO struct {
	CallID         string `json:"call_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Payload        string `json:"payload"`
	Status         string `json:"status"`
	AttemptCount   int    `json:"attempt_count"`
	MaxAttempts    int    `json:"max_attempts"`
	ScheduledAt    string `json:"scheduled_at,omitempty"`
	SpoolFilename  string `json:"spool_filename,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}
