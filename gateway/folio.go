package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
	"github.com/goliatone/go-dcb/ratelimit"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultCallTimeout = 15 * time.Second

const loanFieldRenewalsBlocked = "renewalsBlocked"

const (
	pathItems          = "/inventory/items"
	pathUsers          = "/users"
	pathRequests       = "/circulation/requests"
	pathCheckIn        = "/circulation/check-in-by-barcode"
	pathCheckOut       = "/circulation/check-out-by-barcode"
	pathLoans          = "/circulation/loans"
	pathRenewByID      = "/circulation/renew-by-id"
	pathLoanPolicies   = "/loan-policy-storage/loan-policies"
	loanStatusOpenName = "Open"
)

// FolioGateway implements core.CirculationGateway against the FOLIO
// Okapi REST API through a core.TransportAdapter.
type FolioGateway struct {
	transport core.TransportAdapter
	timeout   time.Duration
	clock     func() time.Time
	logger    core.Logger
	limiter   RateLimitPolicy
	tenant    string
}

// RateLimitPolicy gates platform calls per tenant bucket and learns from
// each response.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.Response) error
}

type Option func(*FolioGateway)

func WithTimeout(timeout time.Duration) Option {
	return func(g *FolioGateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(g *FolioGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(g *FolioGateway) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy, tenant string) Option {
	return func(g *FolioGateway) {
		if policy != nil {
			g.limiter = policy
			g.tenant = strings.TrimSpace(tenant)
		}
	}
}

func NewFolioGateway(transport core.TransportAdapter, opts ...Option) (*FolioGateway, error) {
	if transport == nil {
		return nil, fmt.Errorf("gateway: transport adapter is required")
	}
	g := &FolioGateway{
		transport: transport,
		timeout:   defaultCallTimeout,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	_, logger := glog.Resolve("dcb.gateway", nil, g.logger)
	g.logger = glog.Ensure(logger)
	return g, nil
}

func (g *FolioGateway) FindItem(ctx context.Context, id string) (core.InventoryItem, bool, error) {
	var dto itemDTO
	found, err := g.findByID(ctx, "find_item", pathItems, id, &dto)
	if err != nil || !found {
		return core.InventoryItem{}, found, err
	}
	return dto.toDomain(), true, nil
}

func (g *FolioGateway) CreateItem(ctx context.Context, item core.InventoryItem) (core.InventoryItem, error) {
	var dto itemDTO
	if _, err := g.call(ctx, "create_item", http.MethodPost, pathItems, nil, newItemDTO(item), &dto); err != nil {
		return core.InventoryItem{}, err
	}
	if dto.ID == "" {
		return item, nil
	}
	return dto.toDomain(), nil
}

func (g *FolioGateway) UpdateItem(ctx context.Context, item core.InventoryItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("gateway: item id is required")
	}
	_, err := g.call(ctx, "update_item", http.MethodPut, resourcePath(pathItems, item.ID), nil, newItemDTO(item), nil)
	return err
}

func (g *FolioGateway) FindUser(ctx context.Context, id string) (core.User, bool, error) {
	var dto userDTO
	found, err := g.findByID(ctx, "find_user", pathUsers, id, &dto)
	if err != nil || !found {
		return core.User{}, found, err
	}
	return dto.toDomain(), true, nil
}

func (g *FolioGateway) CreateUser(ctx context.Context, user core.User) (core.User, error) {
	var dto userDTO
	if _, err := g.call(ctx, "create_user", http.MethodPost, pathUsers, nil, newUserDTO(user), &dto); err != nil {
		return core.User{}, err
	}
	if dto.ID == "" {
		return user, nil
	}
	return dto.toDomain(), nil
}

func (g *FolioGateway) CreateRequest(ctx context.Context, req core.CirculationRequest) (core.CirculationRequest, error) {
	var dto requestDTO
	if _, err := g.call(ctx, "create_request", http.MethodPost, pathRequests, nil, newRequestDTO(req), &dto); err != nil {
		return core.CirculationRequest{}, err
	}
	if dto.ID == "" {
		return req, nil
	}
	return dto.toDomain(), nil
}

func (g *FolioGateway) FindRequest(ctx context.Context, id string) (core.CirculationRequest, bool, error) {
	var dto requestDTO
	found, err := g.findByID(ctx, "find_request", pathRequests, id, &dto)
	if err != nil || !found {
		return core.CirculationRequest{}, found, err
	}
	return dto.toDomain(), true, nil
}

func (g *FolioGateway) UpdateRequest(ctx context.Context, req core.CirculationRequest) error {
	if strings.TrimSpace(req.ID) == "" {
		return fmt.Errorf("gateway: request id is required")
	}
	_, err := g.call(ctx, "update_request", http.MethodPut, resourcePath(pathRequests, req.ID), nil, newRequestDTO(req), nil)
	return err
}

func (g *FolioGateway) CheckIn(ctx context.Context, req core.CheckInRequest) error {
	checkInDate := req.CheckInDate
	if checkInDate.IsZero() {
		checkInDate = g.clock()
	}
	_, err := g.call(ctx, "check_in", http.MethodPost, pathCheckIn, nil, checkInDTO{
		ItemBarcode:    req.ItemBarcode,
		ServicePointID: req.ServicePointID,
		CheckInDate:    checkInDate.UTC(),
	}, nil)
	return err
}

func (g *FolioGateway) CheckOut(ctx context.Context, req core.CheckOutRequest) (core.Loan, error) {
	var dto loanDTO
	_, err := g.call(ctx, "check_out", http.MethodPost, pathCheckOut, nil, checkOutDTO{
		ItemBarcode:    req.ItemBarcode,
		UserBarcode:    req.UserBarcode,
		ServicePointID: req.ServicePointID,
	}, &dto)
	if err != nil {
		return core.Loan{}, err
	}
	return dto.toDomain(), nil
}

// FindOpenLoan returns the open loan on itemID with the renewal limits of
// its loan policy.
func (g *FolioGateway) FindOpenLoan(ctx context.Context, itemID string) (core.Loan, bool, error) {
	if strings.TrimSpace(itemID) == "" {
		return core.Loan{}, false, nil
	}
	var collection loanCollectionDTO
	_, err := g.call(ctx, "find_open_loan", http.MethodGet, pathLoans, map[string]string{
		"query": cqlAnd(cqlExact("itemId", itemID), cqlExact("status.name", loanStatusOpenName)),
		"limit": "1",
	}, nil, &collection)
	if err != nil {
		return core.Loan{}, false, err
	}
	if len(collection.Loans) == 0 {
		return core.Loan{}, false, nil
	}
	dto := collection.Loans[0]
	loan := dto.toDomain()
	if strings.TrimSpace(dto.LoanPolicyID) == "" {
		return loan, true, nil
	}
	var policy loanPolicyDTO
	found, err := g.findByID(ctx, "find_loan_policy", pathLoanPolicies, dto.LoanPolicyID, &policy)
	if err != nil {
		return core.Loan{}, false, err
	}
	if !found {
		g.logger.Warn("loan policy not found", "loan_id", loan.ID, "loan_policy_id", dto.LoanPolicyID)
		return loan, true, nil
	}
	return policy.applyTo(loan), true, nil
}

func (g *FolioGateway) RenewLoan(ctx context.Context, itemID string, userID string) (core.Loan, error) {
	var dto loanDTO
	if _, err := g.call(ctx, "renew_loan", http.MethodPost, pathRenewByID, nil, renewDTO{ItemID: itemID, UserID: userID}, &dto); err != nil {
		return core.Loan{}, err
	}
	return dto.toDomain(), nil
}

// SetRenewalBlock rewrites the loan with the renewal block flag. The loan is
// read raw so fields this package does not model survive the update.
func (g *FolioGateway) SetRenewalBlock(ctx context.Context, loanID string, blocked bool) error {
	raw := map[string]any{}
	found, err := g.findByID(ctx, "find_loan", pathLoans, loanID, &raw)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: loan %s", core.ErrNotFound, loanID)
	}
	raw[loanFieldRenewalsBlocked] = blocked
	_, err = g.call(ctx, "set_renewal_block", http.MethodPut, resourcePath(pathLoans, loanID), nil, raw, nil)
	return err
}

func (g *FolioGateway) findByID(ctx context.Context, operation string, collectionPath string, id string, out any) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	status, err := g.call(ctx, operation, http.MethodGet, resourcePath(collectionPath, id), nil, nil, out)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// call executes one platform call. Non-2xx responses become
// *core.UpstreamError carrying the platform status and message.
func (g *FolioGateway) call(
	ctx context.Context,
	operation string,
	method string,
	path string,
	query map[string]string,
	body any,
	out any,
) (int, error) {
	if g == nil || g.transport == nil {
		return 0, fmt.Errorf("gateway: folio gateway is not configured")
	}
	var payload []byte
	if body != nil {
		encoded, err := codec.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("gateway: encode %s payload: %w", operation, err)
		}
		payload = encoded
	}

	key := ratelimit.Key{Tenant: g.tenant, Bucket: ratelimit.BucketForPath(path)}
	if err := g.beforeCall(ctx, operation, key); err != nil {
		return 0, err
	}
	res, err := g.transport.Do(ctx, core.TransportRequest{
		Method:   method,
		URL:      path,
		Query:    query,
		Body:     payload,
		Timeout:  g.timeout,
		Metadata: map[string]any{"operation": operation},
	})
	if err != nil {
		return 0, &core.UpstreamError{
			Operation:  operation,
			StatusCode: transportStatus(err),
			Message:    "transport failure",
			Err:        err,
		}
	}
	g.afterCall(ctx, key, res)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		upstream := &core.UpstreamError{
			Operation:  operation,
			StatusCode: res.StatusCode,
			Message:    platformMessage(res.Body),
		}
		if res.StatusCode != http.StatusNotFound {
			g.logger.Warn("platform call rejected",
				"operation", operation,
				"method", method,
				"path", path,
				"status", res.StatusCode,
				"message", upstream.Message,
			)
		}
		return res.StatusCode, upstream
	}
	if out != nil && len(strings.TrimSpace(string(res.Body))) > 0 {
		if err := codec.Unmarshal(res.Body, out); err != nil {
			return res.StatusCode, fmt.Errorf("gateway: decode %s response: %w", operation, err)
		}
	}
	return res.StatusCode, nil
}

func (g *FolioGateway) beforeCall(ctx context.Context, operation string, key ratelimit.Key) error {
	if g.limiter == nil {
		return nil
	}
	err := g.limiter.BeforeCall(ctx, key)
	if err == nil {
		return nil
	}
	var throttled ratelimit.ThrottledError
	if errors.As(err, &throttled) {
		g.logger.Warn("platform call throttled locally",
			"operation", operation,
			"bucket", key.Bucket,
			"retry_after_ms", throttled.RetryAfter.Milliseconds(),
		)
		return &core.UpstreamError{
			Operation:  operation,
			StatusCode: http.StatusTooManyRequests,
			Message:    "platform rate limit in effect",
			Err:        err,
		}
	}
	return fmt.Errorf("gateway: rate limit state for %s: %w", operation, err)
}

func (g *FolioGateway) afterCall(ctx context.Context, key ratelimit.Key, res core.TransportResponse) {
	if g.limiter == nil {
		return
	}
	if err := g.limiter.AfterCall(ctx, key, ratelimit.Response{StatusCode: res.StatusCode, Headers: res.Headers}); err != nil {
		g.logger.Warn("rate limit state update failed", "bucket", key.Bucket, "error", err.Error())
	}
}

func resourcePath(collectionPath string, id string) string {
	return strings.TrimSuffix(collectionPath, "/") + "/" + url.PathEscape(strings.TrimSpace(id))
}

func transportStatus(err error) int {
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich != nil && rich.Code > 0 {
		return rich.Code
	}
	return http.StatusBadGateway
}

func platformMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var dto platformErrorDTO
	if err := codec.UnmarshalFromString(trimmed, &dto); err == nil {
		if text := dto.text(); text != "" {
			return text
		}
	}
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}

func paging(offset int, limit int) map[string]string {
	query := map[string]string{}
	if offset > 0 {
		query["offset"] = strconv.Itoa(offset)
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	return query
}

var _ core.CirculationGateway = (*FolioGateway)(nil)
