package http

import "fmt"

// State is a step in the lifecycle of one connection.
//
//	Accepted → RequestRead → Malformed
//	                       → ResourceResolved → Found    → Responded200 → Closed
//	                                          → NotFound → Responded404 → Closed
//
// Malformed also ends in Closed. Closed is reported by the worker once it has
// released the connection.
type State int

const (
	StateAccepted State = iota
	StateRequestRead
	StateMalformed
	StateResourceResolved
	StateFound
	StateNotFound
	StateResponded200
	StateResponded404
	StateClosed
)

var stateNames = [...]string{
	StateAccepted:         "ACCEPTED",
	StateRequestRead:      "REQUEST_READ",
	StateMalformed:        "MALFORMED",
	StateResourceResolved: "RESOURCE_RESOLVED",
	StateFound:            "FOUND",
	StateNotFound:         "NOT_FOUND",
	StateResponded200:     "RESPONDED_200",
	StateResponded404:     "RESPONDED_404",
	StateClosed:           "CLOSED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
