package models

// ScanRequest is one uploaded food photo waiting to be analyzed.
type ScanRequest struct {
	UserID      string
	Image       []byte
	ContentType string
	// Filename is informational only
	Filename string
}

// WSMessage is the envelope for messages on the scan websocket.
type WSMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
