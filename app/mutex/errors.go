package mutex

import "errors"

var (
	ErrEmptyName      = errors.New("lock name is empty")
	ErrAlreadyHeld    = errors.New("lock already held by this manager")
	ErrInvalidOptions = errors.New("invalid mutex options")
)
