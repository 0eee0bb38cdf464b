package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TransactionService   = (*Service)(nil)
	_ TransactionStore     = (*MemoryStore)(nil)
	_ AuditStore           = (*MemoryStore)(nil)
	_ StoreProvider        = (*MemoryStore)(nil)
	_ HoldShelfExpiryStore = (*MemoryHoldShelfExpiryStore)(nil)
	_ BackoffScheduler     = ExponentialBackoffScheduler{}

	_ RoleOrchestrator = lenderOrchestrator{}
	_ RoleOrchestrator = borrowerOrchestrator{}
	_ RoleOrchestrator = pickupOrchestrator{}
	_ RoleOrchestrator = borrowingPickupOrchestrator{}
	_ RoleOrchestrator = selfBorrowingOrchestrator{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
