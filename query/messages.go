package query

import (
	"strings"

	"github.com/goliatone/go-dcb/core"
)

const (
	TypeGetStatus         = "dcb.query.transaction.status"
	TypeListStatusHistory = "dcb.query.transaction.history"
)

type GetStatusMessage struct {
	TransactionID string
}

func (GetStatusMessage) Type() string { return TypeGetStatus }

func (m GetStatusMessage) Validate() error {
	if strings.TrimSpace(m.TransactionID) == "" {
		return queryValidationError("transaction_id", "transaction id is required")
	}
	return nil
}

// ListStatusHistoryMessage pages UPDATE audit entries in a time window. A
// zero PageSize selects the configured default.
type ListStatusHistoryMessage struct {
	Query core.HistoryQuery
}

func (ListStatusHistoryMessage) Type() string { return TypeListStatusHistory }

func (m ListStatusHistoryMessage) Validate() error {
	if m.Query.PageNumber < 0 {
		return queryValidationError("pageNumber", "page number must be >= 0")
	}
	if m.Query.PageSize < 0 {
		return queryValidationError("pageSize", "page size must be >= 0")
	}
	if !m.Query.From.IsZero() && !m.Query.To.IsZero() && m.Query.From.After(m.Query.To) {
		return queryValidationError("fromDate", "from date must not be after to date")
	}
	return nil
}
