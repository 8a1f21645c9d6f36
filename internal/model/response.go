package model

// ErrorResponse is the body of every failed request and of SSE error frames.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	Timestamp int64  `json:"timestamp"`
}
