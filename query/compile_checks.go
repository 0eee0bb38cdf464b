package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dcb/core"
)

var (
	_ gocmd.Querier[GetStatusMessage, core.TransactionStatus]         = (*GetStatusQuery)(nil)
	_ gocmd.Querier[ListStatusHistoryMessage, core.StatusHistoryPage] = (*ListStatusHistoryQuery)(nil)
)
