package core

import "context"

// borrowerOrchestrator borrows a remote item for a local patron through a
// placeholder item.
type borrowerOrchestrator struct {
	steps circulationSteps
}

func (borrowerOrchestrator) Role() Role {
	return RoleBorrower
}

func (o borrowerOrchestrator) Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error) {
	return o.steps.createWithPlaceholder(ctx, RoleBorrower, id, req)
}

// ApplyStatus checks the item in at the transaction service point on OPEN
// and at the patron's pickup point afterwards.
func (o borrowerOrchestrator) ApplyStatus(ctx context.Context, tx Transaction, target Status) error {
	if err := o.steps.ready(); err != nil {
		return err
	}
	pickup := tx.Pickup.ServicePointID
	switch target {
	case StatusOpen:
		return o.steps.checkInAndRefetch(ctx, tx, tx.ServicePointID)
	case StatusAwaitingPickup:
		return o.steps.checkInAndRefetch(ctx, tx, pickup)
	case StatusItemCheckedOut:
		return o.steps.checkOutAndRefetch(ctx, tx, pickup)
	case StatusItemCheckedIn:
		return o.steps.checkIn(ctx, tx, pickup)
	case StatusCancelled:
		return o.steps.cancelRequest(ctx, tx)
	default:
		return nil
	}
}
