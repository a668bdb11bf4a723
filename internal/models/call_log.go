package models

import (
	"slices"
	"time"
)

// Call types.
const (
	CallVoice = "voice"
	CallVideo = "video"
)

// Call outcomes.
const (
	CallMissed   = "missed"
	CallEnded    = "ended"
	CallRejected = "rejected"
	CallOngoing  = "ongoing"
)

// CallLog is the record written by the caller side when a call finishes.
type CallLog struct {
	ID        string    `json:"_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Duration  int       `json:"duration"` // seconds
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize fills default type and status.
func (c *CallLog) Normalize() {
	if !slices.Contains([]string{CallVoice, CallVideo}, c.Type) {
		c.Type = CallVoice
	}
	if !slices.Contains([]string{CallMissed, CallEnded, CallRejected, CallOngoing}, c.Status) {
		c.Status = CallEnded
	}
	if c.Duration < 0 {
		c.Duration = 0
	}
}
