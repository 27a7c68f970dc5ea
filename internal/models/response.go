package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// HealthDetails is returned by /healthz?detailed=true
type HealthDetails struct {
	HealthResponse
	SignatureVerification bool            `json:"signature_verification"`
	Notifiers             []string        `json:"notifiers"`
	WhatsApp              map[string]bool `json:"whatsapp,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusResponse represents a generic status response
type StatusResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
