package came

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection indicates a transport failure while talking to the
	// gateway. The session is invalidated so the next application request
	// performs a fresh login.
	ErrConnection = errors.New("error communicating with the CAME gateway")

	// ErrConnectionTimeout is a subtype of ErrConnection raised when the
	// request deadline is hit.
	ErrConnectionTimeout = fmt.Errorf("timeout connecting to the CAME gateway: %w", ErrConnection)

	// ErrUnmanagedDevice is returned when an actuation is attempted on a
	// device that has no action id in this installation.
	ErrUnmanagedDevice = errors.New("device has no action id and cannot be driven")

	// ErrLoginInProgress is returned to a caller that waited for a
	// concurrent login which did not resolve promptly.
	ErrLoginInProgress = errors.New("another login is in progress")
)

// Acknowledgement reasons documented for the sl_data_ack_reason field.
// Zero means success, anything else is an error.
var ackReasonText = map[int]string{
	1:  "invalid user",
	3:  "too many sessions during login",
	4:  "error occurred in JSON syntax",
	5:  "no session layer command tag",
	6:  "unrecognized session layer command",
	7:  "no client id in request",
	8:  "wrong client id in request",
	9:  "wrong application command",
	10: "no reply to application command, maybe service down",
	11: "wrong application data",
}

// AckError is a gateway-reported application error, carrying the nonzero
// acknowledgement reason from the response.
type AckError struct {
	Reason  int
	Message string
}

func newAckError(reason int) *AckError {
	message, ok := ackReasonText[reason]
	if !ok {
		message = fmt.Sprintf("unknown error (#%d)", reason)
	}
	return &AckError{Reason: reason, Message: message}
}

func (e *AckError) Error() string {
	return fmt.Sprintf("gateway refused request: %s (ack reason %d)", e.Message, e.Reason)
}

// ProtocolError indicates a response that does not follow the documented
// protocol: a mismatched response tag or an unparsable body.
type ProtocolError struct {
	Expected string
	Actual   string
	Message  string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return "invalid gateway response: " + e.Message
	}
	return fmt.Sprintf("invalid gateway response: expected tag %q, got %q", e.Expected, e.Actual)
}
