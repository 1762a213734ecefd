package rephrase

import (
	"errors"
)

// RephrasedContent is the platform-agnostic rewritten copy for one item.
// It lives only for the duration of a single pipeline pass.
type RephrasedContent struct {
	Text         string
	SourceItemID string
}

// ErrKeysExhausted is returned when no API key slot is available: every
// slot is cooling down or permanently exhausted.
var ErrKeysExhausted = errors.New("all API key slots exhausted or cooling down")

type SlotState string

const (
	SlotAvailable   SlotState = "available"
	SlotCoolingDown SlotState = "cooling_down"
	SlotExhausted   SlotState = "exhausted"
)
