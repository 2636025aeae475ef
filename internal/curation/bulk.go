package curation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/observability"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultConfirmationTTL is how long a delete confirmation token stays valid.
const DefaultConfirmationTTL = 5 * time.Minute

// Store is the persistence collaborator of the coordinator.
type Store interface {
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
	// SaveTransitions persists already-transitioned products in one round
	// trip. A row is only written while it still holds Transition.From;
	// rows moved meanwhile are left out of BatchReceipt.Saved. A receipt
	// carrying a JobID means the store chose to finish the batch in the
	// background.
	SaveTransitions(ctx context.Context, action Action, transitions []Transition) (*BatchReceipt, error)
	DeleteProducts(ctx context.Context, ids []string) (int, error)
	// DispatchToAI marks products as processing and queues a curation job
	// for the ones it moved, atomically.
	DispatchToAI(ctx context.Context, products []Product, notes *string) (*DispatchReceipt, error)
}

// Transition is a product after an action, with the status it was loaded in.
type Transition struct {
	Product Product
	From    Status
}

// DispatchReceipt names the queued job and the products it covers.
type DispatchReceipt struct {
	JobID      string
	ProductIDs []string
}

// Refresher receives the two independent invalidation signals fired after a
// successful action.
type Refresher interface {
	RefreshProducts()
	RefreshSourceStats()
}

// BatchReceipt is what the store reports for a batch write.
type BatchReceipt struct {
	Saved int
	JobID string
}

// SyncResult is the immediate outcome of a batch.
type SyncResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// JobHandle identifies a background curation job to poll.
type JobHandle struct {
	JobID      string   `json:"job_id"`
	ProductIDs []string `json:"product_ids"`
	// Skipped counts ids that were not eligible and were left out of the job.
	Skipped int `json:"skipped"`
}

// Outcome holds exactly one of Sync or Job.
type Outcome struct {
	Sync *SyncResult
	Job  *JobHandle
}

type confirmation struct {
	key     string
	expires time.Time
}

// Coordinator applies one action to a set of products.
type Coordinator struct {
	store     Store
	refresher Refresher
	tokenTTL  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	tokens   map[string]confirmation
}

// NewCoordinator creates a coordinator. A nil refresher disables refresh signals.
func NewCoordinator(store Store, refresher Refresher, confirmationTTL time.Duration) *Coordinator {
	if confirmationTTL <= 0 {
		confirmationTTL = DefaultConfirmationTTL
	}
	return &Coordinator{
		store:     store,
		refresher: refresher,
		tokenTTL:  confirmationTTL,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
		tokens:    make(map[string]confirmation),
	}
}

// BulkActions are the actions Apply accepts.
var BulkActions = []Action{
	ActionApprove,
	ActionReject,
	ActionChangeBrand,
	ActionChangeCategory,
	ActionSendToAI,
	ActionDelete,
}

// Apply runs action against productIDs. Ids failing their transition are
// counted as failed without stopping the rest of the batch.
func (c *Coordinator) Apply(ctx context.Context, action Action, productIDs []string, payload Payload) (*Outcome, error) {
	span := sentry.StartSpan(ctx, "curation.bulk_apply")
	defer span.Finish()
	span.SetTag("action", string(action))

	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("product_ids", "at least one product must be selected")
	}
	if err := validateBulkPayload(action, payload); err != nil {
		return nil, err
	}

	release, err := c.acquire(ids)
	if err != nil {
		return nil, err
	}
	defer release()

	if action == ActionDelete {
		if err := c.checkConfirmation(payload.ConfirmationToken, ids); err != nil {
			return nil, err
		}
	}

	products, err := c.store.GetProducts(ctx, ids)
	if err != nil {
		span.SetTag("error", "true")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	// The token is spent only once the selection could be loaded, so a
	// failed read does not force the operator to confirm again.
	if action == ActionDelete {
		if err := c.consumeConfirmation(payload.ConfirmationToken, ids); err != nil {
			return nil, err
		}
	}

	eligible, failed := c.transitionAll(action, ids, products, payload)

	var outcome *Outcome
	switch action {
	case ActionSendToAI:
		outcome, err = c.dispatch(ctx, eligible, failed, payload)
	case ActionDelete:
		outcome, err = c.delete(ctx, eligible, failed)
	default:
		outcome, err = c.save(ctx, action, eligible, failed)
	}
	if err != nil {
		span.SetTag("error", "true")
		sentry.CaptureException(err)
		return nil, err
	}

	mode := "sync"
	successful, failedCount := 0, failed
	if outcome.Job != nil {
		mode = "async"
		successful = len(outcome.Job.ProductIDs)
	} else {
		successful, failedCount = outcome.Sync.Successful, outcome.Sync.Failed
	}
	observability.RecordBulkAction(ctx, observability.BulkActionMetrics{
		Action:     string(action),
		Mode:       mode,
		Successful: successful,
		Failed:     failedCount,
	})

	log.Info().
		Str("action", string(action)).
		Str("mode", mode).
		Int("requested", len(ids)).
		Int("successful", successful).
		Int("failed", failedCount).
		Msg("Bulk curation action applied")

	return outcome, nil
}

func (c *Coordinator) transitionAll(action Action, ids []string, products []Product, payload Payload) ([]Transition, int) {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	eligible := make([]Transition, 0, len(ids))
	failed := 0
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			failed++
			log.Debug().Str("product_id", id).Str("action", string(action)).Msg("Product not found for bulk action")
			continue
		}
		from := p.Status
		if err := Apply(&p, action, payload); err != nil {
			failed++
			log.Debug().Err(err).Str("product_id", id).Str("action", string(action)).Msg("Product skipped by bulk action")
			continue
		}
		eligible = append(eligible, Transition{Product: p, From: from})
	}
	return eligible, failed
}

func (c *Coordinator) save(ctx context.Context, action Action, eligible []Transition, failed int) (*Outcome, error) {
	if len(eligible) == 0 {
		return &Outcome{Sync: &SyncResult{Successful: 0, Failed: failed}}, nil
	}

	receipt, err := c.store.SaveTransitions(ctx, action, eligible)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s batch: %w", action, err)
	}
	if receipt.JobID != "" {
		return &Outcome{Job: &JobHandle{JobID: receipt.JobID, ProductIDs: transitionIDs(eligible), Skipped: failed}}, nil
	}

	saved := min(receipt.Saved, len(eligible))
	c.refresh()
	return &Outcome{Sync: &SyncResult{Successful: saved, Failed: failed + len(eligible) - saved}}, nil
}

func (c *Coordinator) dispatch(ctx context.Context, eligible []Transition, failed int, payload Payload) (*Outcome, error) {
	if len(eligible) == 0 {
		return &Outcome{Sync: &SyncResult{Successful: 0, Failed: failed}}, nil
	}

	products := make([]Product, len(eligible))
	for i, t := range eligible {
		products[i] = t.Product
	}
	receipt, err := c.store.DispatchToAI(ctx, products, payload.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch products to AI: %w", err)
	}
	// Products are now processing, so listings and counts change right away.
	c.refresh()

	// Rows another writer moved between load and dispatch are not in the job.
	moved := receipt.ProductIDs
	return &Outcome{Job: &JobHandle{
		JobID:      receipt.JobID,
		ProductIDs: moved,
		Skipped:    failed + max(len(eligible)-len(moved), 0),
	}}, nil
}

func (c *Coordinator) delete(ctx context.Context, eligible []Transition, failed int) (*Outcome, error) {
	if len(eligible) == 0 {
		return &Outcome{Sync: &SyncResult{Successful: 0, Failed: failed}}, nil
	}

	deleted, err := c.store.DeleteProducts(ctx, transitionIDs(eligible))
	if err != nil {
		return nil, fmt.Errorf("failed to delete products: %w", err)
	}
	deleted = min(deleted, len(eligible))
	c.refresh()
	return &Outcome{Sync: &SyncResult{Successful: deleted, Failed: failed + len(eligible) - deleted}}, nil
}

func (c *Coordinator) refresh() {
	if c.refresher == nil {
		return
	}
	c.refresher.RefreshProducts()
	c.refresher.RefreshSourceStats()
}

// Transition applies a single action to one product and persists it. Unlike
// Apply, a failed guard is returned as the error instead of being counted.
func (c *Coordinator) Transition(ctx context.Context, productID string, action Action, payload Payload) (*Outcome, error) {
	if action == ActionDelete || action == ActionCompleteAI {
		return nil, apperr.Validation("action", fmt.Sprintf("%q cannot be applied to a single product", action))
	}
	return c.transition(ctx, productID, payload, func(Product) (Action, error) {
		return action, nil
	})
}

// TransitionTo moves one product to target, picking the action that gets it
// there from its current status.
func (c *Coordinator) TransitionTo(ctx context.Context, productID string, target Status, payload Payload) (*Outcome, error) {
	if !target.Valid() {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown status %q", target))
	}
	return c.transition(ctx, productID, payload, func(p Product) (Action, error) {
		action, ok := ActionFor(p.Status, target)
		if !ok {
			return "", &IllegalTransitionError{
				ProductID: p.ID,
				From:      p.Status,
				Action:    Action("set_" + string(target)),
				Reason:    fmt.Sprintf("%s cannot be reached directly", target),
			}
		}
		return action, nil
	})
}

func (c *Coordinator) transition(ctx context.Context, productID string, payload Payload, resolve func(Product) (Action, error)) (*Outcome, error) {
	span := sentry.StartSpan(ctx, "curation.transition")
	defer span.Finish()
	span.SetTag("product_id", productID)

	release, err := c.acquire([]string{productID})
	if err != nil {
		return nil, err
	}
	defer release()

	products, err := c.store.GetProducts(ctx, []string{productID})
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
	}

	p := products[0]
	from := p.Status
	action, err := resolve(p)
	if err != nil {
		return nil, err
	}
	span.SetTag("action", string(action))
	if err := Apply(&p, action, payload); err != nil {
		return nil, err
	}

	single := []Transition{{Product: p, From: from}}
	var outcome *Outcome
	if action == ActionSendToAI {
		outcome, err = c.dispatch(ctx, single, 0, payload)
	} else {
		outcome, err = c.save(ctx, action, single, 0)
	}
	if err != nil {
		span.SetTag("error", "true")
		return nil, err
	}

	log.Info().
		Str("product_id", productID).
		Str("action", string(action)).
		Str("status", string(p.Status)).
		Msg("Product transitioned")

	return outcome, nil
}

// RequestConfirmation issues a single-use token that authorises deleting
// exactly productIDs.
func (c *Coordinator) RequestConfirmation(productIDs []string) (string, error) {
	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return "", apperr.Validation("product_ids", "at least one product must be selected")
	}

	token := uuid.NewString()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for t, conf := range c.tokens {
		if now.After(conf.expires) {
			delete(c.tokens, t)
		}
	}
	c.tokens[token] = confirmation{key: selectionKey(ids), expires: now.Add(c.tokenTTL)}
	return token, nil
}

// checkConfirmation verifies token without spending it.
func (c *Coordinator) checkConfirmation(token string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyLocked(token, ids)
}

// consumeConfirmation verifies token and spends it.
func (c *Coordinator) consumeConfirmation(token string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.verifyLocked(token, ids); err != nil {
		return err
	}
	delete(c.tokens, token)
	return nil
}

func (c *Coordinator) verifyLocked(token string, ids []string) error {
	if token == "" {
		return fmt.Errorf("%w: delete needs a confirmation token", apperr.ErrConfirmationRequired)
	}

	conf, ok := c.tokens[token]
	if !ok || c.now().After(conf.expires) {
		return fmt.Errorf("%w: token is unknown or expired", apperr.ErrConfirmationRequired)
	}
	if conf.key != selectionKey(ids) {
		return fmt.Errorf("%w: token was issued for a different selection", apperr.ErrConfirmationRequired)
	}
	return nil
}

// acquire marks ids as in flight, refusing if any of them already is.
func (c *Coordinator) acquire(ids []string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var busy []string
	for _, id := range ids {
		if _, ok := c.inflight[id]; ok {
			busy = append(busy, id)
		}
	}
	if len(busy) > 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrActionInFlight, strings.Join(busy, ", "))
	}
	for _, id := range ids {
		c.inflight[id] = struct{}{}
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, id := range ids {
			delete(c.inflight, id)
		}
	}, nil
}

func validateBulkPayload(action Action, payload Payload) error {
	if !slices.Contains(BulkActions, action) {
		return apperr.Validation("action", fmt.Sprintf("%q is not a bulk action", action))
	}
	switch action {
	case ActionChangeBrand:
		if strings.TrimSpace(payload.Brand) == "" {
			return apperr.Validation("brand", "is required")
		}
	case ActionChangeCategory:
		if strings.TrimSpace(payload.Category) == "" {
			return apperr.Validation("category", "is required")
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func selectionKey(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}

func transitionIDs(transitions []Transition) []string {
	out := make([]string, len(transitions))
	for i, t := range transitions {
		out[i] = t.Product.ID
	}
	return out
}
