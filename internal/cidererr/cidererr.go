// Package cidererr defines the typed error taxonomy shared across the
// session: every externally-visible failure carries a Kind so a caller
// (or an FFI boundary) can branch on cause without string matching.
package cidererr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to branch on cause.
type Kind string

const (
	// KindPlayerUnreachable is raised when the player's control adapter
	// cannot be reached at all (connect failure, not an HTTP error).
	KindPlayerUnreachable Kind = "player_unreachable"
	// KindPlayer covers player-control-adapter failures other than auth
	// or unreachability: a non-2xx, non-401/403 response (§7 PlayerApi).
	KindPlayer Kind = "player_api"
	// KindUnauthorized is the player adapter's 401/403 response.
	KindUnauthorized Kind = "unauthorized"
	// KindNetwork covers libp2p transport/dial/pubsub failures.
	KindNetwork Kind = "network"
	// KindNotInRoom is raised by session operations that require an
	// active room when none is held.
	KindNotInRoom Kind = "not_in_room"
	// KindAlreadyInRoom is raised by CreateRoom/JoinRoom when the
	// session already occupies a non-None Room variant.
	KindAlreadyInRoom Kind = "already_in_room"
	// KindNotHost is raised when a host-only session operation is
	// invoked by a non-host participant.
	KindNotHost Kind = "not_host"
	// KindJoinTimeout is raised when JoinRoom's 10s wait elapses with
	// no RoomState received.
	KindJoinTimeout Kind = "join_timeout"
	// KindProtocol covers malformed or unauthorized sync messages.
	KindProtocol Kind = "protocol"
	// KindInternal covers anything that shouldn't be reachable in practice.
	KindInternal Kind = "internal"
)

// Error is the taxonomy's concrete type. It wraps an optional underlying
// error so %w-style chains still work with errors.Is/As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error around an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
