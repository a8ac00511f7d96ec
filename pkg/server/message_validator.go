package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/antibyte/espresso/pkg/shared"
	"github.com/antibyte/espresso/pkg/store"
)

// MaxInputLen bounds the content of an input message.
const MaxInputLen = 64

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrRunTarget          = errors.New("run needs either content or program, not both")
	ErrContentTooLarge    = errors.New("program too large")
	ErrInputTooLong       = errors.New("input too long")
	ErrServerField        = errors.New("field is set by the server only")
)

// MessageValidator decodes and checks messages sent by clients.
type MessageValidator struct {
	MaxContentLen int
}

// NewMessageValidator creates a validator accepting programs up to
// maxContentLen bytes.
func NewMessageValidator(maxContentLen int) *MessageValidator {
	return &MessageValidator{MaxContentLen: maxContentLen}
}

// Decode parses data as a single client message and validates it.
func (v *MessageValidator) Decode(data []byte) (*shared.Message, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var msg shared.Message
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after message")
	}
	if err := v.Validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks a decoded client message.
func (v *MessageValidator) Validate(msg *shared.Message) error {
	if msg.Variable != "" || msg.Line != 0 || msg.Kind != "" || msg.RunID != "" {
		return ErrServerField
	}

	switch msg.Type {
	case shared.MessageTypeRun:
		if (msg.Content == "") == (msg.Program == "") {
			return ErrRunTarget
		}
		if msg.Program != "" && !store.ValidName(msg.Program) {
			return fmt.Errorf("%w: %q", store.ErrInvalidName, msg.Program)
		}
		if len(msg.Content) > v.MaxContentLen {
			return fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLarge, len(msg.Content), v.MaxContentLen)
		}
	case shared.MessageTypeInput:
		if len(msg.Content) > MaxInputLen {
			return ErrInputTooLong
		}
		if msg.Program != "" {
			return ErrServerField
		}
	case shared.MessageTypeCancel:
		if msg.Content != "" || msg.Program != "" {
			return errors.New("cancel takes no arguments")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
	return nil
}
