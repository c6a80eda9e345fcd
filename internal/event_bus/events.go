package event_bus

import "github.com/google/uuid"

type CalendarOperation string

const (
	CalendarEventCreated  CalendarOperation = "created"
	CalendarEventUpdated  CalendarOperation = "updated"
	CalendarEventArchived CalendarOperation = "archived"
)

// CalendarEventChanged tells the provider mirror that a stored event needs syncing.
type CalendarEventChanged struct {
	UID       uuid.UUID
	Owner     string
	Operation CalendarOperation
}

// CredentialChanged is published when the client credential is replaced or cleared.
type CredentialChanged struct {
	HasCredential bool
}
