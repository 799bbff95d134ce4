package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/internal/storage"
)

var visitorPattern = regexp.MustCompile(`^visitor-[a-z0-9]{9}$`)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("storage disabled")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("storage disabled")
}

func TestNewVisitorIDFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, visitorPattern, NewVisitorID())
	}
}

func TestGetOrCreate_PersistsFirstID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	ident := New(store, zap.NewNop())

	first := ident.GetOrCreate(ctx)
	assert.Regexp(t, visitorPattern, first)

	stored, err := store.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	assert.Equal(t, first, ident.GetOrCreate(ctx))
}

func TestGetOrCreate_ReturnsExistingID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, StorageKey, "visitor-returning"))

	assert.Equal(t, "visitor-returning", New(store, zap.NewNop()).GetOrCreate(ctx))
}

func TestGetOrCreate_StorageFailureDegradesToFreshID(t *testing.T) {
	ident := New(failingStore{}, zap.NewNop())
	ctx := context.Background()

	first := ident.GetOrCreate(ctx)
	second := ident.GetOrCreate(ctx)

	assert.Regexp(t, visitorPattern, first)
	assert.Regexp(t, visitorPattern, second)
	assert.NotEqual(t, first, second)
}

func TestGetOrCreate_NilStore(t *testing.T) {
	assert.Regexp(t, visitorPattern, New(nil, zap.NewNop()).GetOrCreate(context.Background()))
}

// countingStore counts every store operation
type countingStore struct {
	storage.Store
	gets, sets int
}

func (s *countingStore) Get(ctx context.Context, key string) (string, error) {
	s.gets++
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.sets++
	return s.Store.Set(ctx, key, value)
}

func TestKnown_EmptyUntilResolved(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: storage.NewMemory()}
	ident := New(store, zap.NewNop())

	assert.Equal(t, "", ident.Known())
	assert.Zero(t, store.gets+store.sets, "Known never reads or writes")

	visitorID := ident.GetOrCreate(ctx)
	assert.Equal(t, visitorID, ident.Known())

	assert.Equal(t, visitorID, ident.GetOrCreate(ctx))
	assert.Equal(t, 1, store.gets, "a resolved id is not read again")
	assert.Equal(t, 1, store.sets)
}

func TestKnown_StaysEmptyWhenStorageFails(t *testing.T) {
	ident := New(failingStore{}, zap.NewNop())
	ident.GetOrCreate(context.Background())
	assert.Equal(t, "", ident.Known())
}
