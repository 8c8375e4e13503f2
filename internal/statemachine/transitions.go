package statemachine

import "github.com/cloudonix/voicerouter/internal/models"

// legalTransitions is the authoritative transition table from spec.md §4.1.
// Anything not listed here fails with engineerr.ErrInvalidTransition.
var legalTransitions = map[models.CallState][]models.CallState{
	models.StateReceived:   {models.StateQueued},
	models.StateQueued:     {models.StateRouting, models.StateFailed},
	models.StateRouting:    {models.StateConnecting, models.StateFailed, models.StateNoAnswer},
	models.StateConnecting: {models.StateConnected, models.StateBusy, models.StateFailed, models.StateNoAnswer},
	models.StateConnected:  {models.StateCompleted, models.StateFailed},
}

// isLegal reports whether from -> to is a permitted transition.
func isLegal(from, to models.CallState) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// carrierStatusMap projects free-form carrier statuses onto states. This
// table is authoritative and shared with the test suite (spec.md §4.1).
//
// Two entries are deliberately surprising and must never be "fixed" (see
// spec.md §9): "connected" maps to StateConnecting, not StateConnected,
// while "answer"/"answered" map to StateConnected. Changing this mapping
// would silently alter recorded call durations.
var carrierStatusMap = map[string]models.CallState{
	"ringing":    models.StateConnecting,
	"connected":  models.StateConnecting,
	"processing": models.StateConnecting,
	"answer":     models.StateConnected,
	"answered":   models.StateConnected,
	"noanswer":   models.StateNoAnswer,
	"busy":       models.StateBusy,
	"nocredit":   models.StateFailed,
	"cancel":     models.StateFailed,
	"external":   models.StateConnecting,
	"error":      models.StateFailed,
	"completed":  models.StateCompleted,
	"failed":     models.StateFailed,
}

// MapCarrierStatus projects a carrier-reported status string onto a
// CallState. Unrecognized statuses map to StateConnecting — a non-terminal
// safe default that keeps the session observable for triage.
func MapCarrierStatus(status string) models.CallState {
	if state, ok := carrierStatusMap[status]; ok {
		return state
	}
	return models.StateConnecting
}
