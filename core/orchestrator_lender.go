package core

import "context"

// lenderOrchestrator lends a real local item to a remote patron.
type lenderOrchestrator struct {
	steps circulationSteps
}

func (lenderOrchestrator) Role() Role {
	return RoleLender
}

func (o lenderOrchestrator) Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error) {
	if err := o.steps.ready(); err != nil {
		return Transaction{}, err
	}
	item, err := o.steps.findRealItem(ctx, req.Item)
	if err != nil {
		return Transaction{}, err
	}
	patron, err := o.steps.resolvePatron(ctx, req.Patron)
	if err != nil {
		return Transaction{}, err
	}
	servicePoint, err := o.steps.shared(ctx, RecordServicePoint)
	if err != nil {
		return Transaction{}, err
	}
	request, err := o.steps.placeRequest(ctx, requestTypeFor(item), item, patron, servicePoint.ID)
	if err != nil {
		return Transaction{}, err
	}
	return o.steps.newTransaction(id, RoleLender, req, item, request, servicePoint.ID), nil
}

func (o lenderOrchestrator) ApplyStatus(ctx context.Context, tx Transaction, target Status) error {
	if err := o.steps.ready(); err != nil {
		return err
	}
	switch target {
	case StatusAwaitingPickup:
		return o.steps.checkIn(ctx, tx, tx.ServicePointID)
	case StatusItemCheckedOut:
		return o.steps.checkOutAndRefetch(ctx, tx, tx.ServicePointID)
	case StatusCancelled:
		return o.steps.cancelRequest(ctx, tx)
	default:
		return nil
	}
}
