package protocol

import "fmt"

// Result code of every transport, framing, dispatch and storage operation.
// Values are stable and travel on the wire inside replies.
type Outcome int32

const (
	OK Outcome = iota
	Partial
	NoneReady
	WayTooSmall
	Garbage
	IllegalLength
	NoConnection
	TimedOut
	NoServer
	NoAnswer
	AccessDenied
	TooFull
	NotFound
	NoHandler
	Disallowed
	EncryptionMismatch
	NoSpace
	BadInput
	Failure
)

var outcomeNames = map[Outcome]string{
	OK:                 "OK",
	Partial:            "PARTIAL",
	NoneReady:          "NONE_READY",
	WayTooSmall:        "WAY_TOO_SMALL",
	Garbage:            "GARBAGE",
	IllegalLength:      "ILLEGAL_LENGTH",
	NoConnection:       "NO_CONNECTION",
	TimedOut:           "TIMED_OUT",
	NoServer:           "NO_SERVER",
	NoAnswer:           "NO_ANSWER",
	AccessDenied:       "ACCESS_DENIED",
	TooFull:            "TOO_FULL",
	NotFound:           "NOT_FOUND",
	NoHandler:          "NO_HANDLER",
	Disallowed:         "DISALLOWED",
	EncryptionMismatch: "ENCRYPTION_MISMATCH",
	NoSpace:            "NO_SPACE",
	BadInput:           "BAD_INPUT",
	Failure:            "FAILURE",
}

func (result Outcome) String() (name string) {
	name, ok := outcomeNames[result]
	if !ok {
		name = fmt.Sprintf("OUTCOME(%d)", int32(result))
	}
	return
}

// Outcomes satisfy error so they can be wrapped and matched with errors.Is
func (result Outcome) Error() string {
	return result.String()
}

// Reports whether the code is one this build knows about
func (result Outcome) Known() (known bool) {
	_, known = outcomeNames[result]
	return
}
