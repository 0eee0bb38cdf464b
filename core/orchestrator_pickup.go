package core

import "context"

// pickupOrchestrator serves a remote-home patron collecting the item here.
// Its hops are bookkeeping except for cancellation.
type pickupOrchestrator struct {
	steps circulationSteps
}

func (pickupOrchestrator) Role() Role {
	return RolePickup
}

func (o pickupOrchestrator) Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error) {
	return o.steps.createWithPlaceholder(ctx, RolePickup, id, req)
}

func (o pickupOrchestrator) ApplyStatus(ctx context.Context, tx Transaction, target Status) error {
	if target != StatusCancelled {
		return nil
	}
	if err := o.steps.ready(); err != nil {
		return err
	}
	return o.steps.cancelRequest(ctx, tx)
}

// borrowingPickupOrchestrator covers a patron whose home and pickup library
// coincide: borrower creation, pickup hops.
type borrowingPickupOrchestrator struct {
	borrower borrowerOrchestrator
	pickup   pickupOrchestrator
}

func (borrowingPickupOrchestrator) Role() Role {
	return RoleBorrowingPickup
}

func (o borrowingPickupOrchestrator) Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error) {
	return o.borrower.steps.createWithPlaceholder(ctx, RoleBorrowingPickup, id, req)
}

func (o borrowingPickupOrchestrator) ApplyStatus(ctx context.Context, tx Transaction, target Status) error {
	return o.pickup.ApplyStatus(ctx, tx, target)
}
