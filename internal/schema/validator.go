// Package schema validates outbound events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"interview-copilot-service/internal/models"
)

// ErrInvalidEvent is returned for events that violate their schema.
var ErrInvalidEvent = errors.New("invalid event")

var turnStatuses = map[string]bool{
	"pending":   true,
	"streaming": true,
	"complete":  true,
	"discarded": true,
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a TurnEvent or StatusEvent. Other types are rejected.
func (v *Validator) Validate(event any) error {
	var err error
	switch e := event.(type) {
	case models.TurnEvent:
		err = validateTurn(e)
	case *models.TurnEvent:
		err = validateTurn(*e)
	case models.StatusEvent:
		err = validateStatus(e)
	case *models.StatusEvent:
		err = validateStatus(*e)
	default:
		err = fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Schema validation failed")
	}
	return err
}

func validateTurn(e models.TurnEvent) error {
	if e.SessionID == "" {
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}

	switch e.EventType {
	case models.EventTranscriptCleared:
		return nil
	case models.EventTurnUpdated, models.EventTurnRemoved:
	case models.EventTurnCompleted:
		if e.Status != "complete" {
			return fmt.Errorf("%w: completed turn with status %q", ErrInvalidEvent, e.Status)
		}
		if e.Question == "" && e.Answer == "" {
			return fmt.Errorf("%w: completed turn %s has no text", ErrInvalidEvent, e.TurnID)
		}
	default:
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, e.EventType)
	}

	if e.TurnID == "" {
		return fmt.Errorf("%w: missing turnId", ErrInvalidEvent)
	}
	if e.Index < 0 {
		return fmt.Errorf("%w: negative index", ErrInvalidEvent)
	}
	if !turnStatuses[e.Status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	}
	return nil
}

func validateStatus(e models.StatusEvent) error {
	if e.EventType != models.EventSessionStatus {
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, e.EventType)
	}
	if e.State == "" {
		return fmt.Errorf("%w: missing state", ErrInvalidEvent)
	}
	if e.Level < 0 {
		return fmt.Errorf("%w: negative level", ErrInvalidEvent)
	}
	return nil
}
