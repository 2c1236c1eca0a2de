package editor

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session closed")
	ErrStopIndex         = errors.New("stop index out of range")
	ErrStopNotFound      = errors.New("stop not found")
	ErrInvalidStop       = errors.New("invalid stop")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidDirection  = errors.New("direction must be up or down")
	ErrInvalidOptions    = errors.New("invalid optimize options")
	ErrDuplicatePackage  = errors.New("package already on route")
	ErrPackageNotOnRoute = errors.New("package not on route")
	ErrNoPackages        = errors.New("no packages to assign")
	ErrSuperseded        = errors.New("optimize superseded by a newer request")
)
