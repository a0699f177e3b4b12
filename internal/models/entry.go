package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QueueEntry is one durable not-yet-delivered user action. Entries are
// deleted on confirmed delivery; there is no stored "delivered" status.
type QueueEntry struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Retries        int             `json:"retries"`
	LastError      *string         `json:"last_error"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at"`
}

// Dead reports whether the entry has exhausted its automatic retries.
func (e *QueueEntry) Dead() bool {
	return e.Retries >= MaxRetries
}

// Eligible reports whether the entry may be attempted in a sync pass
// starting at now.
func (e *QueueEntry) Eligible(now time.Time) bool {
	if e.Status != EntryStatusPending || e.Dead() {
		return false
	}
	if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
		return false
	}
	return true
}

// SocialPostPayload is the body of a queued wall post.
type SocialPostPayload struct {
	CheckinID    string `json:"checkin_id"`
	LocationSlug string `json:"location_slug"`
	Content      string `json:"content"`
	ImageURL     string `json:"image_url,omitempty"`
}

// DirectMessagePayload is the body of a queued direct message.
type DirectMessagePayload struct {
	FromCheckinID string `json:"from_checkin_id"`
	ToCheckinID   string `json:"to_checkin_id"`
	Content       string `json:"content"`
}

// DJTipPayload is the body of a queued DJ tip.
type DJTipPayload struct {
	FromCheckinID string  `json:"from_checkin_id"`
	LocationSlug  string  `json:"location_slug"`
	Amount        float64 `json:"amount"`
	Message       string  `json:"message,omitempty"`
}

var ErrUnknownEntryType = errors.New("unknown entry type")

// ValidatePayload decodes and checks the payload for the given entry type.
// Unknown fields are rejected so a misfiled payload surfaces at enqueue
// time rather than as a delivery failure.
func ValidatePayload(entryType string, raw json.RawMessage) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	switch entryType {
	case TypeSocialPost:
		var p SocialPostPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode social-post payload: %w", err)
		}
		if p.CheckinID == "" || p.LocationSlug == "" {
			return errors.New("social-post requires checkin_id and location_slug")
		}
		if p.Content == "" {
			return errors.New("social-post requires content")
		}
	case TypeDirectMessage:
		var p DirectMessagePayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode direct-message payload: %w", err)
		}
		if p.FromCheckinID == "" || p.ToCheckinID == "" {
			return errors.New("direct-message requires from_checkin_id and to_checkin_id")
		}
		if p.Content == "" {
			return errors.New("direct-message requires content")
		}
	case TypeDJTip:
		var p DJTipPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode dj-tip payload: %w", err)
		}
		if p.FromCheckinID == "" || p.LocationSlug == "" {
			return errors.New("dj-tip requires from_checkin_id and location_slug")
		}
		if p.Amount <= 0 {
			return errors.New("dj-tip requires a positive amount")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntryType, entryType)
	}
	return nil
}
