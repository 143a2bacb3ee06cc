package llm

import "strings"

// Kind buckets a provider failure for user-facing reporting.
type Kind int

const (
	KindGeneric Kind = iota
	KindQuota
	KindSafety
	KindNetwork
)

// Canned user-facing strings. Raw provider error text never reaches the
// user; it goes to the log instead.
const (
	msgEmptyReply = "I couldn't generate a response to that. Try rephrasing?"
	msgQuota      = "I've hit my usage limit for now. Please try again in a little while."
	msgSafety     = "I can't answer that one — the safety filter stepped in."
	msgNetwork    = "I couldn't reach the model service. Please try again."
	msgGeneric    = "Something went wrong while generating a response. Please try again."
)

// Error wraps a provider failure with its classified kind. The wrapped
// error keeps full detail for logging; UserMessage is what the channel sees.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the canned reply for this failure kind.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindQuota:
		return msgQuota
	case KindSafety:
		return msgSafety
	case KindNetwork:
		return msgNetwork
	default:
		return msgGeneric
	}
}

// classify inspects the error message for known provider failure
// signatures. Substring matching is crude but it is all the API gives us:
// failure detail arrives as prose inside an error payload.
func classify(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "http 429"):
		return &Error{Kind: KindQuota, Err: err}
	case strings.Contains(msg, "safety"),
		strings.Contains(msg, "blocked"):
		return &Error{Kind: KindSafety, Err: err}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "call model api"):
		return &Error{Kind: KindNetwork, Err: err}
	default:
		return &Error{Kind: KindGeneric, Err: err}
	}
}

// UserMessageFor maps any completion error to its canned user string.
// Non-classified errors get the generic message.
func UserMessageFor(err error) string {
	if e, ok := err.(*Error); ok {
		return e.UserMessage()
	}
	return msgGeneric
}
