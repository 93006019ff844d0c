/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON and XML shapes exchanged with chat gateways and with the
  operators polling the status endpoint. Keeps the directory and conversation
  types out of the wire contract.

NAMING CONVENTION:
  - *DTO:      Response types returned to clients
  - *Request:  Request body types from clients
  - *Response: Response wrappers

FIELD NAMES:
  The status payload keeps the Portuguese keys ("funcionarios",
  "recompensas") that existing uptime checks already parse.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/xml"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

// StatusDTO is the health payload served at GET /.
type StatusDTO struct {
	Status    string     `json:"status"`
	Employees int        `json:"funcionarios"`
	Rewards   int        `json:"recompensas"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	Connected bool       `json:"connected"`
	Sessions  int        `json:"sessions"`
	LastError string     `json:"last_error,omitempty"`
}

// ReloadResponse reports the counts after a forced reload.
type ReloadResponse struct {
	Status    string    `json:"status"`
	Employees int       `json:"funcionarios"`
	Rewards   int       `json:"recompensas"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// =============================================================================
// MESSAGES
// =============================================================================

// MessageRequest is one inbound chat message from a JSON gateway.
type MessageRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// MessageResponse carries the reply the gateway should send back.
type MessageResponse struct {
	Reply string `json:"reply"`
}

// twimlResponse is the TwiML document answering a messaging webhook.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
