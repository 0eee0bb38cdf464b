package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var snapshotCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// auditRecorder builds immutable audit entries. The prior snapshot is always
// handed in by the caller.
type auditRecorder struct {
	store AuditStore
	clock func() time.Time
	newID func() string
}

func (r auditRecorder) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock().UTC()
}

func (r auditRecorder) id() string {
	if r.newID == nil {
		return uuid.NewString()
	}
	return r.newID()
}

func (r auditRecorder) createEntry(after Transaction) (AuditEntry, error) {
	snapshot, err := encodeSnapshot(after)
	if err != nil {
		return AuditEntry{}, err
	}
	return AuditEntry{
		ID:            r.id(),
		TransactionID: after.ID,
		Action:        AuditActionCreate,
		After:         snapshot,
		CreatedAt:     r.now(),
	}, nil
}

func (r auditRecorder) updateEntry(before Transaction, after Transaction) (AuditEntry, error) {
	beforeSnapshot, err := encodeSnapshot(before)
	if err != nil {
		return AuditEntry{}, err
	}
	afterSnapshot, err := encodeSnapshot(after)
	if err != nil {
		return AuditEntry{}, err
	}
	return AuditEntry{
		ID:             r.id(),
		TransactionID:  after.ID,
		Action:         AuditActionUpdate,
		PreviousStatus: before.Status,
		Status:         after.Status,
		Before:         beforeSnapshot,
		After:          afterSnapshot,
		CreatedAt:      r.now(),
	}, nil
}

// recordFailure appends an ERROR entry, or a DUPLICATE_ERROR entry against
// UnknownTransactionID when cause is a duplicate create.
func (r auditRecorder) recordFailure(ctx context.Context, transactionID string, before any, attempted any, cause error) error {
	if r.store == nil || cause == nil {
		return nil
	}
	entry := AuditEntry{
		ID:            r.id(),
		TransactionID: strings.TrimSpace(transactionID),
		Action:        AuditActionError,
		ErrorMessage:  cause.Error(),
		CreatedAt:     r.now(),
	}
	if errors.Is(cause, ErrDuplicateTransaction) {
		entry.Action = AuditActionDuplicateError
		entry.TransactionID = UnknownTransactionID
	}
	if entry.TransactionID == "" {
		entry.TransactionID = UnknownTransactionID
	}
	if before != nil {
		snapshot, err := encodeSnapshot(before)
		if err != nil {
			return err
		}
		entry.Before = snapshot
	}
	if attempted != nil {
		snapshot, err := encodeSnapshot(attempted)
		if err != nil {
			return err
		}
		entry.After = snapshot
	}
	return r.store.Append(ctx, entry)
}

func encodeSnapshot(value any) (string, error) {
	payload, err := snapshotCodec.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("core: encode audit snapshot: %w", err)
	}
	return string(payload), nil
}

func decodeTransactionSnapshot(raw string) (Transaction, error) {
	var tx Transaction
	if strings.TrimSpace(raw) == "" {
		return tx, nil
	}
	if err := snapshotCodec.UnmarshalFromString(raw, &tx); err != nil {
		return Transaction{}, fmt.Errorf("core: decode audit snapshot: %w", err)
	}
	return tx, nil
}

type createAttempt struct {
	TransactionID string                   `json:"transactionId"`
	Request       CreateTransactionRequest `json:"request"`
}

type statusAttempt struct {
	TransactionID string `json:"transactionId"`
	From          Status `json:"from"`
	To            Status `json:"to"`
}

type operationAttempt struct {
	TransactionID string         `json:"transactionId"`
	Operation     string         `json:"operation"`
	Details       map[string]any `json:"details,omitempty"`
}
