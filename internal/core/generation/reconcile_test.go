package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"Postgen/internal/core/posts"
	"Postgen/internal/core/rehost"
)

const ownedPrefix = "https://abc.supabase.co/storage/v1/object/public/variant-images/"

// mockVariantStore is a mock implementation of VariantStore
type mockVariantStore struct {
	mock.Mock
}

func (m *mockVariantStore) GetByID(ctx context.Context, id string) (*posts.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posts.Post), args.Error(1)
}

func (m *mockVariantStore) ListVariants(ctx context.Context, postID string) ([]posts.Variant, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]posts.Variant), args.Error(1)
}

func (m *mockVariantStore) CreateVariants(ctx context.Context, variants []posts.Variant) error {
	args := m.Called(ctx, variants)
	return args.Error(0)
}

// memoryVariantStore keeps variants in memory and rejects duplicate numbers
type memoryVariantStore struct {
	mu       sync.Mutex
	variants map[string][]posts.Variant
}

func newMemoryVariantStore() *memoryVariantStore {
	return &memoryVariantStore{variants: make(map[string][]posts.Variant)}
}

func (s *memoryVariantStore) GetByID(ctx context.Context, id string) (*posts.Post, error) {
	return &posts.Post{ID: id}, nil
}

func (s *memoryVariantStore) ListVariants(ctx context.Context, postID string) ([]posts.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]posts.Variant(nil), s.variants[postID]...), nil
}

func (s *memoryVariantStore) CreateVariants(ctx context.Context, variants []posts.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range variants {
		for _, existing := range s.variants[v.PostID] {
			if existing.VariantNumber == v.VariantNumber {
				return posts.ErrVariantConflict
			}
		}
	}
	for _, v := range variants {
		s.variants[v.PostID] = append(s.variants[v.PostID], v)
	}
	return nil
}

// fakeRehoster rehosts into ownedPrefix unless the source is listed in fail
type fakeRehoster struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []rehost.Destination
}

func (f *fakeRehoster) Rehost(ctx context.Context, sourceURL string, dest rehost.Destination) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, dest)
	f.mu.Unlock()

	if strings.HasPrefix(sourceURL, ownedPrefix) {
		return sourceURL, nil
	}
	if err, ok := f.fail[sourceURL]; ok {
		return "", err
	}
	return fmt.Sprintf("%s%s/%d-1700000000000.png", ownedPrefix, dest.PostID, dest.VariantNumber), nil
}

func ptr(s string) *string { return &s }

// newExistingPostStore returns a mock store whose post p1 exists
func newExistingPostStore() *mockVariantStore {
	store := new(mockVariantStore)
	store.On("GetByID", mock.Anything, "p1").Return(&posts.Post{ID: "p1"}, nil).Maybe()
	return store
}

func newTestReconciler(store VariantStore, rehoster ImageRehoster) *Reconciler {
	r := NewReconciler(store, rehoster, 2, nil, zap.NewNop())
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("variant-id-%d", n)
	}
	return r
}

func TestPlan_NoExistingVariants(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{}, nil)

	r := newTestReconciler(store, nil)
	planned, err := r.Plan(context.Background(), "p1", NormalizedContent{
		"variant1": {Text: ptr("one")},
		"variant2": {Image: ptr("https://cdn/2.png")},
	})

	require.NoError(t, err)
	require.Len(t, planned, 2)
	assert.Equal(t, 1, planned[0].Variant.VariantNumber)
	assert.Equal(t, "variant1", planned[0].SlotKey)
	assert.Equal(t, 2, planned[1].Variant.VariantNumber)
	assert.Equal(t, "variant2", planned[1].SlotKey)
	assert.Equal(t, "p1", planned[1].Variant.PostID)
}

func TestPlan_ContinuesAfterHighestExisting(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{
		{VariantNumber: 2}, {VariantNumber: 4}, {VariantNumber: 1},
	}, nil)

	r := newTestReconciler(store, nil)
	planned, err := r.Plan(context.Background(), "p1", NormalizedContent{
		"variant3": {Text: ptr("three")},
		"variant1": {Text: ptr("one")},
		"variant2": {},
	})

	require.NoError(t, err)
	require.Len(t, planned, 2)
	// Slot order, empty slot skipped, numbering contiguous
	assert.Equal(t, "variant1", planned[0].SlotKey)
	assert.Equal(t, 5, planned[0].Variant.VariantNumber)
	assert.Equal(t, "variant3", planned[1].SlotKey)
	assert.Equal(t, 6, planned[1].Variant.VariantNumber)
}

func TestPlan_ListError(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return(nil, errors.New("db down"))

	r := newTestReconciler(store, nil)
	_, err := r.Plan(context.Background(), "p1", NormalizedContent{"variant1": {Text: ptr("x")}})
	assert.ErrorContains(t, err, "db down")
}

func TestReconcile_RehostsImagesAndPersists(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{}, nil)
	store.On("CreateVariants", mock.Anything, mock.MatchedBy(func(vs []posts.Variant) bool {
		return len(vs) == 2 &&
			vs[0].VariantNumber == 1 && *vs[0].Text == "one" && vs[0].Image == nil &&
			vs[1].VariantNumber == 2 && *vs[1].Image == ownedPrefix+"p1/2-1700000000000.png"
	})).Return(nil).Once()

	rehoster := &fakeRehoster{}
	r := newTestReconciler(store, rehoster)

	final, err := r.Reconcile(context.Background(), "p1", NormalizedContent{
		"variant1": {Text: ptr("one")},
		"variant2": {Text: ptr("two"), Image: ptr("https://cdn/2.png")},
	})

	require.NoError(t, err)
	assert.Equal(t, ownedPrefix+"p1/2-1700000000000.png", *final["variant2"].Image)
	assert.Equal(t, "two", *final["variant2"].Text)
	assert.Nil(t, final["variant1"].Image)
	// Text-only variants are not sent to the rehoster
	assert.Equal(t, []rehost.Destination{{PostID: "p1", VariantNumber: 2}}, rehoster.calls)
	store.AssertExpectations(t)
}

func TestReconcile_RehostFailureKeepsOriginalURL(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{{VariantNumber: 1}}, nil)
	store.On("CreateVariants", mock.Anything, mock.MatchedBy(func(vs []posts.Variant) bool {
		return len(vs) == 2 &&
			*vs[0].Image == "https://cdn/broken.png" &&
			*vs[1].Image == ownedPrefix+"p1/3-1700000000000.png"
	})).Return(nil).Once()

	rehoster := &fakeRehoster{fail: map[string]error{
		"https://cdn/broken.png": fmt.Errorf("%w: unexpected status code 404", rehost.ErrFetchFailed),
	}}
	r := NewReconciler(store, rehoster, 3, metrics, zap.New(core))

	final, err := r.Reconcile(context.Background(), "p1", NormalizedContent{
		"variant1": {Image: ptr("https://cdn/broken.png")},
		"variant2": {Image: ptr("https://cdn/fine.png")},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/broken.png", *final["variant1"].Image)
	assert.Equal(t, ownedPrefix+"p1/3-1700000000000.png", *final["variant2"].Image)

	warnings := logs.FilterMessageSnippet("rehost failed").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, "p1", fields["post_id"])
	assert.Equal(t, int64(2), fields["variant_number"])

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.rehosts.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.rehosts.WithLabelValues("rehosted")))
	store.AssertExpectations(t)
}

func TestReconcile_OwnedImageIsNotCopied(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{}, nil)
	store.On("CreateVariants", mock.Anything, mock.Anything).Return(nil)

	owned := ownedPrefix + "p1/1-1600000000000.webp"
	r := newTestReconciler(store, &fakeRehoster{})

	final, err := r.Reconcile(context.Background(), "p1", NormalizedContent{"variant1": {Image: &owned}})
	require.NoError(t, err)
	assert.Equal(t, owned, *final["variant1"].Image)
}

func TestReconcile_PersistFailureReturnsFinalContent(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{}, nil)
	store.On("CreateVariants", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	r := newTestReconciler(store, &fakeRehoster{})

	final, err := r.Reconcile(context.Background(), "p1", NormalizedContent{
		"variant1": {Text: ptr("one"), Image: ptr("https://cdn/1.png")},
	})

	var partial *PartialFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "persist_variants", partial.Step)
	assert.Equal(t, "p1", partial.PostID)
	assert.Equal(t, ownedPrefix+"p1/1-1700000000000.png", *final["variant1"].Image)
}

func TestReconcile_PlanFailureSkipsRehostAndPersist(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return(nil, errors.New("db down"))

	rehoster := &fakeRehoster{}
	r := newTestReconciler(store, rehoster)

	content := NormalizedContent{"variant1": {Image: ptr("https://cdn/1.png")}}
	final, err := r.Reconcile(context.Background(), "p1", content)

	var partial *PartialFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "plan_variants", partial.Step)
	assert.Equal(t, content, final)
	assert.Empty(t, rehoster.calls)
	store.AssertNotCalled(t, "CreateVariants", mock.Anything, mock.Anything)
}

func TestReconcile_EmptyContentPersistsNothing(t *testing.T) {
	store := newExistingPostStore()
	store.On("ListVariants", mock.Anything, "p1").Return([]posts.Variant{}, nil)

	r := newTestReconciler(store, &fakeRehoster{})
	_, err := r.Reconcile(context.Background(), "p1", NormalizedContent{"variant1": {}})

	require.NoError(t, err)
	store.AssertNotCalled(t, "CreateVariants", mock.Anything, mock.Anything)
}

func TestReconcile_ConcurrentSamePostDoesNotCollide(t *testing.T) {
	store := newMemoryVariantStore()
	r := NewReconciler(store, nil, 1, nil, zap.NewNop())

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reconcile(context.Background(), "p1", NormalizedContent{
				"variant1": {Text: ptr("a")},
				"variant2": {Text: ptr("b")},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	variants, _ := store.ListVariants(context.Background(), "p1")
	numbers := make([]int, 0, len(variants))
	for _, v := range variants {
		numbers = append(numbers, v.VariantNumber)
	}
	sort.Ints(numbers)

	want := make([]int, workers*2)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, numbers)
	assert.Empty(t, r.locks.locks)
}

func TestReconcile_UnknownPostCopiesNoImages(t *testing.T) {
	store := new(mockVariantStore)
	store.On("GetByID", mock.Anything, "not-a-post").Return(nil, posts.ErrNotFound)

	rehoster := &fakeRehoster{}
	r := newTestReconciler(store, rehoster)

	content := NormalizedContent{
		"variant1": {Image: ptr("https://cdn/1.png")},
		"variant2": {Text: ptr("two"), Image: ptr("https://cdn/2.png")},
	}
	final, err := r.Reconcile(context.Background(), "not-a-post", content)

	var partial *PartialFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "plan_variants", partial.Step)
	assert.True(t, posts.IsNotFound(err))
	assert.Equal(t, content, final)
	assert.Empty(t, rehoster.calls)
	store.AssertNotCalled(t, "ListVariants", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CreateVariants", mock.Anything, mock.Anything)
}

func TestNonBlank(t *testing.T) {
	assert.Nil(t, nonBlank(nil))
	assert.Nil(t, nonBlank(ptr("   ")))
	assert.Equal(t, "https://cdn/1.png", *nonBlank(ptr("https://cdn/1.png")))
}
