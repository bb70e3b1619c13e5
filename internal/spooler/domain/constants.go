package domain

// Call status constants
const (
	CallStatusPending  = "PENDING"
	CallStatusSpooling = "SPOOLING"
	CallStatusSpooled  = "SPOOLED"
	CallStatusFailed   = "FAILED"
	CallStatusCanceled = "CANCELED"
)
