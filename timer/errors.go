package timer

import "github.com/pkg/errors"

var (
	// ErrOnlyRootMayDeriveChildren is returned when CreateChild is called on
	// a driver that is not the root for its physical timer.
	ErrOnlyRootMayDeriveChildren = errors.New("only the root timer driver may create children")

	// ErrTooManyChildren is returned once the id space for one physical
	// timer is exhausted. Ids are allocated monotonically and never reused.
	ErrTooManyChildren = errors.New("too many children created for timer driver")

	// ErrTimerAlreadyRegistered is returned when registering an interrupt on
	// an id that is still live.
	ErrTimerAlreadyRegistered = errors.New("timer interrupt already registered for this driver")
)
