package sqlstore

import "github.com/goliatone/go-dcb/core"

var (
	_ core.TransactionStore       = (*TransactionStore)(nil)
	_ core.AuditStore             = (*AuditStore)(nil)
	_ core.HoldShelfExpiryStore   = (*HoldShelfExpiryStore)(nil)
	_ core.HoldShelfExpiryStore   = (*CachedHoldShelfExpiryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
