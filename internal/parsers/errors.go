package parsers

import "errors"

// DealerOnParseError means the dealeron_tagging_data payload could not be
// located or decoded; the orchestrator may retry via SmartPath or Team
// Velocity depending on raw-content sniffing.
type DealerOnParseError struct {
	msg string
}

func (e *DealerOnParseError) Error() string { return e.msg }

func newDealerOnParseError(msg string) error { return &DealerOnParseError{msg: msg} }

// SmartPathParseError triggers the candidate-URL fallback chain.
type SmartPathParseError struct {
	msg string
}

func (e *SmartPathParseError) Error() string { return e.msg }

func newSmartPathParseError(msg string) error { return &SmartPathParseError{msg: msg} }

// TeamVelocityParseError signals that no dealer host (canonical link) was
// found; a page with no `@type=="Car"` JSON-LD node yields zero rows, not
// this error.
type TeamVelocityParseError struct {
	msg string
}

func (e *TeamVelocityParseError) Error() string { return e.msg }

func newTeamVelocityParseError(msg string) error { return &TeamVelocityParseError{msg: msg} }

// ErrNoConfig is returned by an API-follow-up's extractConfig step when the
// page markup carries no credentials for that backend.
var ErrNoConfig = errors.New("parsers: no api follow-up config found in markup")
