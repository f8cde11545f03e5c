package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scope struct{ token, org int64 }

type fakeStore struct {
	mu     sync.Mutex
	billed map[scope]int64
	next   map[scope]int64
	err    error
}

func (f *fakeStore) NextBillSequence(_ context.Context, tokenID, orgID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.next == nil {
		f.next = map[scope]int64{}
	}
	k := scope{tokenID, orgID}
	if _, ok := f.next[k]; !ok {
		f.next[k] = f.billed[k]
	}
	f.next[k]++
	return f.next[k], nil
}

func (f *fakeStore) CountBilledExpenses(_ context.Context, tokenID, orgID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.billed[scope{tokenID, orgID}], nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestStoreSequencer(t *testing.T) {
	seq := NewStoreSequencer(&fakeStore{billed: map[scope]int64{{1, 1}: 4}})
	n, err := seq.Next(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = NewStoreSequencer(&fakeStore{err: errors.New("boom")}).Next(context.Background(), 1, 1)
	assert.ErrorContains(t, err, "boom")
}

func TestRedisSequencerSeedsFromStore(t *testing.T) {
	ctx := context.Background()
	seq := NewRedisSequencer(newRedis(t), &fakeStore{billed: map[scope]int64{{7, 1}: 2}})

	n, err := seq.Next(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = seq.Next(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = seq.Next(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "each organisation counts on its own")

	n, err = seq.Next(ctx, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, seq.Ping(ctx))
}

func TestRedisSequencerConcurrent(t *testing.T) {
	ctx := context.Background()
	seq := NewRedisSequencer(newRedis(t), &fakeStore{})

	const workers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, 1, 1)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers)
}

func TestNewRedisClientInvalidURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}
