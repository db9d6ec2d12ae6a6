package registry

import "errors"

var (
	// ErrUnknownAgent is returned when no profile exists for a mention.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownSkill is returned when a profile references a skill that has
	// no markdown body in any skills directory.
	ErrUnknownSkill = errors.New("unknown skill")
)
