package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTransient        = errors.New("store unavailable")

	ErrVotingClosed    = errors.New("estimates are revealed")
	ErrNoVoters        = errors.New("no voters and no estimates")
	ErrInvalidEstimate = errors.New("estimate is not in the active deck")
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrUserIDMalformed    = errors.New("user id contains reserved characters")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrRoomNameEmpty      = errors.New("room name empty")
	ErrRoomNameTooLong    = errors.New("room name too long")
)
