package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDecision is a guard decision for a processed report
	EventTypeDecision EventType = "decision"
	// EventTypeAnomaly is a reinsertion anomaly (dropped, duplicated or unknown placeholders)
	EventTypeAnomaly EventType = "anomaly"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// DecisionEvent summarises a guard decision. It carries no report text.
type DecisionEvent struct {
	RequestID          string   `json:"request_id"`
	Status             string   `json:"status"`
	Blocked            bool     `json:"blocked"`
	Overridden         bool     `json:"overridden"`
	Reasons            []string `json:"reasons"`
	AddedNumbers       int      `json:"added_numbers"`
	RemovedNumbers     int      `json:"removed_numbers"`
	LateralityChanged  bool     `json:"laterality_changed"`
	NewMedicalKeywords []string `json:"new_medical_keywords"`
	Placeholders       int      `json:"placeholders"`
	Provider           string   `json:"provider"`
	ProcessingMS       float64  `json:"processing_ms"`
}

// AnomalyEvent reports placeholders the rewrite did not preserve
type AnomalyEvent struct {
	RequestID  string   `json:"request_id"`
	Missing    []string `json:"missing,omitempty"`
	Duplicated []string `json:"duplicated,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	ClientIP   string        `json:"client_ip"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// subscribed event types; nil means all
	events map[EventType]bool
}

func (c *Client) wants(t EventType) bool {
	return c.events == nil || c.events[t]
}
