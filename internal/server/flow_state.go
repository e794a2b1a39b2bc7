package server

import (
	"slices"

	"github.com/dgellow/idbroker/internal/log"
)

// flowState is a step of the authorization flow. Each step arrives as its
// own request, correlated by the state key or the session token.
type flowState string

const (
	stateNewRequest      flowState = "NEW_REQUEST"
	stateAwaitingLogin   flowState = "AWAITING_LOGIN"
	stateAwaitingConsent flowState = "AWAITING_CONSENT"
	stateApproved        flowState = "APPROVED"
	stateRejected        flowState = "REJECTED"
	stateError           flowState = "ERROR"
)

// allowedTransitions is the flow graph. Anything else is a programming error.
var allowedTransitions = map[flowState][]flowState{
	stateNewRequest:      {stateAwaitingLogin, stateAwaitingConsent, stateError},
	stateAwaitingLogin:   {stateAwaitingConsent, stateError},
	stateAwaitingConsent: {stateApproved, stateRejected, stateError},
}

func (s flowState) canTransitionTo(to flowState) bool {
	return slices.Contains(allowedTransitions[s], to)
}

// transition records a state change in the logs and metrics
func (h *AuthHandlers) transition(from, to flowState, fields map[string]any) {
	if !from.canTransitionTo(to) {
		log.LogErrorWithFields("flow", "Unexpected flow transition", map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}

	logFields := map[string]any{
		"from": string(from),
		"to":   string(to),
	}
	for k, v := range fields {
		logFields[k] = v
	}
	if to == stateError {
		log.LogWarnWithFields("flow", "Flow transition", logFields)
	} else {
		log.LogInfoWithFields("flow", "Flow transition", logFields)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition(string(from), string(to))
	}
}
