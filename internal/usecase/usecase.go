package usecase

import (
	"time"

	uuid "github.com/google/uuid"
)

// timeSource supplies the current moment; replaced in tests.
type timeSource func() time.Time

func defaultTimeSource() time.Time {
	return time.Now().UTC()
}

func newEventID() string {
	return uuid.NewString()
}
