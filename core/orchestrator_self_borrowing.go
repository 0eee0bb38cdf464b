package core

import "context"

// selfBorrowingOrchestrator handles a patron borrowing from their own
// library. It works on the real item and the request's real pickup point,
// then hands status hops to the role it wraps.
type selfBorrowingOrchestrator struct {
	role     Role
	steps    circulationSteps
	statuses RoleOrchestrator
}

func (o selfBorrowingOrchestrator) Role() Role {
	return o.role
}

func (o selfBorrowingOrchestrator) Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error) {
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
	pickup := req.Pickup.ServicePointID
	request, err := o.steps.placeRequest(ctx, requestTypeFor(item), item, patron, pickup)
	if err != nil {
		return Transaction{}, err
	}
	return o.steps.newTransaction(id, o.role, req, item, request, pickup), nil
}

func (o selfBorrowingOrchestrator) ApplyStatus(ctx context.Context, tx Transaction, target Status) error {
	return o.statuses.ApplyStatus(ctx, tx, target)
}
