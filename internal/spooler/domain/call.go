package domain

// Call is a claimed calls row, carrying what the spooler needs to build
// and deliver the call file.
type Call struct {
	CallID       string
	Payload      string // callspec JSON
	Status       string
	WorkerID     string
	AttemptCount int
	MaxAttempts  int
}

// CallMessage is a call notification taken off the queue.
type CallMessage struct {
	CallID      string `json:"call_id"`
	DeliveryTag uint64 `json:"-"`
}
