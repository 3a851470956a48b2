package service

import (
	"context"

	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/events/store"
)

// CapacityController answers occupancy questions and owns the admission
// decision. The decision itself is delegated to the store so counting and
// deciding happen in one atomic unit.
type CapacityController struct {
	store store.Store
}

func NewCapacityController(st store.Store) *CapacityController {
	return &CapacityController{store: st}
}

// ConfirmedCount returns the number of confirmed registrations. Pending and
// waitinglisted registrations never consume places.
func (c *CapacityController) ConfirmedCount(ctx context.Context, eventID int64) (int, error) {
	return c.store.CountConfirmed(ctx, eventID)
}

// FreePlaces returns the remaining places, nil for unlimited events. The
// value can be negative when the limit was lowered after admissions.
func (c *CapacityController) FreePlaces(ctx context.Context, event *models.Event) (*int, error) {
	if event.MaxParticipants == nil {
		return nil, nil
	}
	count, err := c.store.CountConfirmed(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	free := *event.MaxParticipants - count
	return &free, nil
}

// DecideAdmission settles a pending registration to confirmed or
// waitinglist. An already-decided registration keeps its status.
func (c *CapacityController) DecideAdmission(ctx context.Context, registrationID int64) (models.Status, error) {
	return c.store.Admit(ctx, registrationID)
}
