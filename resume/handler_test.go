package resume

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/store"
	"golang.org/x/oauth2"
)

type countingExchanger struct {
	calls     int32
	verifiers []string
	mux       sync.Mutex
	err       error
}

func (e *countingExchanger) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	atomic.AddInt32(&e.calls, 1)
	e.mux.Lock()
	e.verifiers = append(e.verifiers, verifier)
	e.mux.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &oauth2.Token{AccessToken: "at-" + code}, nil
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Take(ctx context.Context, key string) (string, error) {
	return "", errors.New("redis: i/o timeout")
}

func TestHandler_Resume(t *testing.T) {
	ctx := context.Background()

	t.Run("missing state is a no-op", func(t *testing.T) {
		exchanger := &countingExchanger{}
		handler := New(store.NewMemoryStore(nil), exchanger)
		err := handler.Resume(ctx, &asyncauth.HandleAsyncCallback{State: "unknown", Code: "c1"})
		assert.NoError(t, err)
		assert.EqualValues(t, 0, exchanger.calls)
	})

	t.Run("exchanges once and deletes state", func(t *testing.T) {
		kv := store.NewMemoryStore(nil)
		require.NoError(t, kv.Put(ctx, "s1", "v1", time.Hour))
		exchanger := &countingExchanger{}
		var received []*oauth2.Token
		handler := New(kv, exchanger, WithSink(TokenSinkFunc(func(ctx context.Context, token *oauth2.Token) error {
			received = append(received, token)
			return nil
		})))

		callback := &asyncauth.HandleAsyncCallback{State: "s1", Code: "c1"}
		assert.NoError(t, handler.Resume(ctx, callback))
		assert.NoError(t, handler.Resume(ctx, callback))

		assert.EqualValues(t, 1, exchanger.calls)
		assert.Equal(t, []string{"v1"}, exchanger.verifiers)
		require.Len(t, received, 1)
		assert.Equal(t, "at-c1", received[0].AccessToken)
		_, err := kv.Get(ctx, "s1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("failed exchange still deletes state", func(t *testing.T) {
		kv := store.NewMemoryStore(nil)
		require.NoError(t, kv.Put(ctx, "s1", "v1", time.Hour))
		exchanger := &countingExchanger{err: errors.New("invalid_grant")}
		handler := New(kv, exchanger)
		assert.NoError(t, handler.Resume(ctx, &asyncauth.HandleAsyncCallback{State: "s1", Code: "c1"}))
		assert.Equal(t, 0, kv.Len())
	})

	t.Run("concurrent duplicates exchange once", func(t *testing.T) {
		kv := store.NewMemoryStore(nil)
		require.NoError(t, kv.Put(ctx, "s1", "v1", time.Hour))
		exchanger := &countingExchanger{}
		handler := New(kv, exchanger)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = handler.Resume(ctx, &asyncauth.HandleAsyncCallback{State: "s1", Code: "c1"})
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, atomic.LoadInt32(&exchanger.calls))
	})

	t.Run("store errors are returned for retry", func(t *testing.T) {
		exchanger := &countingExchanger{}
		handler := New(brokenStore{}, exchanger)
		err := handler.Resume(ctx, &asyncauth.HandleAsyncCallback{State: "s1", Code: "c1"})
		assert.Error(t, err)
		assert.EqualValues(t, 0, exchanger.calls)
	})
}

type stubVerifier struct {
	err error
}

func (s stubVerifier) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*provider.IDClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.IDClaims{Subject: "u1"}, nil
}

func TestLogSink_Accept(t *testing.T) {
	ctx := context.Background()
	token := &oauth2.Token{AccessToken: "at", TokenType: "Bearer"}
	assert.NoError(t, NewLogSink(asyncauth.DefaultLogger, nil).Accept(ctx, token))
	assert.NoError(t, NewLogSink(asyncauth.DefaultLogger, stubVerifier{}).Accept(ctx, token))
	assert.ErrorIs(t, NewLogSink(asyncauth.DefaultLogger, stubVerifier{err: provider.ErrNoIDToken}).Accept(ctx, token), provider.ErrNoIDToken)
}
