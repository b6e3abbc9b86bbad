package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Postgen/internal/core/posts"
	"Postgen/internal/core/rehost"
)

// DefaultRehostConcurrency bounds parallel image rehosts within one reconciliation.
const DefaultRehostConcurrency = 3

// VariantStore is the persistence the reconciler needs.
type VariantStore interface {
	// GetByID returns posts.ErrNotFound for unknown or malformed ids.
	GetByID(ctx context.Context, id string) (*posts.Post, error)
	ListVariants(ctx context.Context, postID string) ([]posts.Variant, error)
	CreateVariants(ctx context.Context, variants []posts.Variant) error
}

// ImageRehoster copies an image into owned storage and returns its final URL.
type ImageRehoster interface {
	Rehost(ctx context.Context, sourceURL string, dest rehost.Destination) (string, error)
}

// PlannedVariant is a numbered variant together with the slot it came from.
type PlannedVariant struct {
	SlotKey string
	Variant posts.Variant
}

// Reconciler turns normalized content into persisted, numbered variants.
type Reconciler struct {
	store       VariantStore
	rehoster    ImageRehoster
	logger      *zap.Logger
	metrics     *Metrics
	locks       *postLocks
	newID       func() string
	now         func() time.Time
	concurrency int
}

// NewReconciler creates a Reconciler. rehoster may be nil, in which case image
// URLs are persisted as received.
func NewReconciler(store VariantStore, rehoster ImageRehoster, concurrency int, metrics *Metrics, logger *zap.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultRehostConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:       store,
		rehoster:    rehoster,
		logger:      logger.Named("reconcile"),
		metrics:     metrics,
		locks:       newPostLocks(),
		newID:       uuid.NewString,
		now:         time.Now,
		concurrency: concurrency,
	}
}

// Plan numbers each non-empty slot starting after the highest existing variant number.
// Slots are assigned in slot order; empty slots are skipped.
// An unknown post fails here so no image is copied for it.
func (r *Reconciler) Plan(ctx context.Context, postID string, content NormalizedContent) ([]PlannedVariant, error) {
	if _, err := r.store.GetByID(ctx, postID); err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}

	existing, err := r.store.ListVariants(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing variants: %w", err)
	}

	next := maxVariantNumber(existing) + 1
	now := r.now().UTC()

	var planned []PlannedVariant
	for _, key := range content.Keys() {
		slot := content[key]
		if slot.IsEmpty() {
			continue
		}
		planned = append(planned, PlannedVariant{
			SlotKey: key,
			Variant: posts.Variant{
				ID:            r.newID(),
				PostID:        postID,
				VariantNumber: next,
				Text:          slot.Text,
				Image:         slot.Image,
				CreatedAt:     now,
				UpdatedAt:     now,
			},
		})
		next++
	}
	return planned, nil
}

// Reconcile plans, rehosts and persists the variants for postID.
//
// The returned content always reflects the final image URLs, including when
// persistence fails. A non-nil error is a *PartialFailure.
func (r *Reconciler) Reconcile(ctx context.Context, postID string, content NormalizedContent) (NormalizedContent, error) {
	unlock := r.locks.lock(postID)
	defer unlock()

	planned, err := r.Plan(ctx, postID, content)
	if err != nil {
		return content, &PartialFailure{PostID: postID, Step: "plan_variants", Err: err}
	}
	if len(planned) == 0 {
		return content, nil
	}

	r.rehostAll(ctx, planned)

	final := make(NormalizedContent, len(content))
	for k, v := range content {
		final[k] = v
	}
	variants := make([]posts.Variant, 0, len(planned))
	for _, p := range planned {
		slot := final[p.SlotKey]
		slot.Image = p.Variant.Image
		final[p.SlotKey] = slot
		variants = append(variants, p.Variant)
	}

	if err := r.store.CreateVariants(ctx, variants); err != nil {
		return final, &PartialFailure{PostID: postID, Step: "persist_variants", Err: err}
	}

	r.logger.Info("[GENERATE] Variants persisted",
		zap.String("post_id", postID),
		zap.Int("count", len(variants)),
		zap.Int("first_variant_number", variants[0].VariantNumber))

	return final, nil
}

// rehostAll rehosts every planned image in place. A failed rehost keeps the original URL.
func (r *Reconciler) rehostAll(ctx context.Context, planned []PlannedVariant) {
	if r.rehoster == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i := range planned {
		v := &planned[i].Variant
		source := nonBlank(v.Image)
		if source == nil {
			continue
		}
		g.Go(func() error {
			dest := rehost.Destination{PostID: v.PostID, VariantNumber: v.VariantNumber}
			finalURL, err := r.rehoster.Rehost(ctx, *source, dest)
			if err != nil {
				r.metrics.observeRehost("failed")
				r.logger.Warn("[GENERATE] Image rehost failed, keeping original URL",
					zap.String("post_id", v.PostID),
					zap.Int("variant_number", v.VariantNumber),
					zap.String("source_url", *source),
					zap.Error(err))
				return nil
			}
			if finalURL == *source {
				r.metrics.observeRehost("owned")
			} else {
				r.metrics.observeRehost("rehosted")
			}
			v.Image = &finalURL
			return nil
		})
	}
	_ = g.Wait()
}

// nonBlank returns nil for nil or whitespace-only values
func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func maxVariantNumber(variants []posts.Variant) int {
	highest := 0
	for _, v := range variants {
		if v.VariantNumber > highest {
			highest = v.VariantNumber
		}
	}
	return highest
}

// postLocks serializes reconciliation per post within this process.
// Other processes are covered only by the (post_id, variant_number) unique constraint.
type postLocks struct {
	mu    sync.Mutex
	locks map[string]*postLock
}

type postLock struct {
	mu   sync.Mutex
	refs int
}

func newPostLocks() *postLocks {
	return &postLocks{locks: make(map[string]*postLock)}
}

func (l *postLocks) lock(postID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[postID]
	if !ok {
		entry = &postLock{}
		l.locks[postID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, postID)
		}
		l.mu.Unlock()
	}
}
