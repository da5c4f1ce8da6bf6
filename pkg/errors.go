package udrone

import (
	"fmt"

	"github.com/pkg/errors"
)

// Unreachable means one or more expected drones never produced a terminal
// reply within the retransmission or request budget.
type Unreachable struct {
	Drones []string
	cause  error
}

func (e *Unreachable) Error() string {
	return fmt.Sprintf("drone(s) unreachable: %v", e.Drones)
}

func (e *Unreachable) Unwrap() error { return e.cause }

func newUnreachable(drones []string) *Unreachable {
	return &Unreachable{Drones: drones, cause: errors.New("request timeout")}
}

// NotFound means a group operation could not locate enough idle drones, or a
// request was issued against an empty group.
type NotFound struct {
	Reason string
}

func (e *NotFound) Error() string {
	if e.Reason == "" {
		return "not found"
	}
	return e.Reason
}

func newNotFoundf(format string, args ...any) *NotFound {
	return &NotFound{Reason: fmt.Sprintf(format, args...)}
}

// RuntimeFailure means a drone answered within budget but reported an error,
// or its reply could not be parsed as a well-formed status.
type RuntimeFailure struct {
	Code  int
	Msg   string
	Drone string
	cause error
}

func (e *RuntimeFailure) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("drone %s: code %d: %s", e.Drone, e.Code, e.Msg)
	}
	return fmt.Sprintf("drone %s: code %d", e.Drone, e.Code)
}

func (e *RuntimeFailure) Unwrap() error { return e.cause }

// Well-known codes mirrored from the wire protocol's POSIX-flavoured errno
// values; the wire carries plain integers, these are just names for them.
const (
	codeEOPNOTSUPP = 95
	codeEPROTO     = 71
)

func newRuntimeFailure(code int, msg, drone string) *RuntimeFailure {
	return &RuntimeFailure{Code: code, Msg: msg, Drone: drone}
}

// Conflict means a drone that is not a member of the group answered a group
// request anyway, suggesting a group id collision on the network. Always
// fatal for the call it occurred in; never retried.
type Conflict struct {
	Drone string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("unexpected reply from non-member drone %s", e.Drone)
}

func newConflict(drone string) *Conflict {
	return &Conflict{Drone: drone}
}
