package query

import (
	"context"

	"github.com/goliatone/go-dcb/core"
)

type TransactionStatusReader interface {
	GetStatus(ctx context.Context, id string) (core.TransactionStatus, error)
}

type StatusHistoryReader interface {
	ListStatusHistory(ctx context.Context, query core.HistoryQuery) (core.StatusHistoryPage, error)
}

type GetStatusQuery struct {
	reader TransactionStatusReader
}

func NewGetStatusQuery(reader TransactionStatusReader) *GetStatusQuery {
	return &GetStatusQuery{reader: reader}
}

func (q *GetStatusQuery) Query(ctx context.Context, msg GetStatusMessage) (core.TransactionStatus, error) {
	if q == nil || q.reader == nil {
		return core.TransactionStatus{}, queryDependencyError("query: transaction status reader is required")
	}
	return q.reader.GetStatus(ctx, msg.TransactionID)
}

type ListStatusHistoryQuery struct {
	reader StatusHistoryReader
}

func NewListStatusHistoryQuery(reader StatusHistoryReader) *ListStatusHistoryQuery {
	return &ListStatusHistoryQuery{reader: reader}
}

func (q *ListStatusHistoryQuery) Query(
	ctx context.Context,
	msg ListStatusHistoryMessage,
) (core.StatusHistoryPage, error) {
	if q == nil || q.reader == nil {
		return core.StatusHistoryPage{}, queryDependencyError("query: status history reader is required")
	}
	return q.reader.ListStatusHistory(ctx, msg.Query)
}
