package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

func exp(v int64) *int64 { return &v }

func newSession(n int) auth.Session {
	return auth.Session{
		ID:           fmt.Sprintf("sid-%d", n),
		AccessToken:  fmt.Sprintf("access-%d-%d", n, time.Now().UnixNano()),
		RefreshToken: fmt.Sprintf("refresh-%d-%d", n, time.Now().UnixNano()),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func runSessionStoreSuite(t *testing.T, newStore func(t *testing.T) auth.SessionStore) {
	ctx := context.Background()

	t.Run("save and find by either token", func(t *testing.T) {
		st := newStore(t)
		in := newSession(1)

		saved, err := st.Save(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, in.AccessToken, saved.AccessToken)

		byAccess, err := st.FindByAccessToken(ctx, in.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, byAccess)
		assert.Equal(t, in.ID, byAccess.ID)
		assert.Equal(t, in.RefreshToken, byAccess.RefreshToken)

		byRefresh, err := st.FindByRefreshToken(ctx, in.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, byRefresh)
		assert.Equal(t, in.AccessToken, byRefresh.AccessToken)
	})

	t.Run("absent session is nil", func(t *testing.T) {
		st := newStore(t)
		s, err := st.FindByAccessToken(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, s)

		s, err = st.FindByRefreshToken(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("collision on either key is refused", func(t *testing.T) {
		st := newStore(t)
		first := newSession(1)
		_, err := st.Save(ctx, first)
		require.NoError(t, err)

		sameAccess := newSession(2)
		sameAccess.AccessToken = first.AccessToken
		_, err = st.Save(ctx, sameAccess)
		assert.ErrorIs(t, err, auth.ErrIdentifierCollision)

		sameRefresh := newSession(3)
		sameRefresh.RefreshToken = first.RefreshToken
		_, err = st.Save(ctx, sameRefresh)
		assert.ErrorIs(t, err, auth.ErrIdentifierCollision)

		// original mapping untouched
		got, err := st.FindByRefreshToken(ctx, first.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.AccessToken, got.AccessToken)
	})

	t.Run("delete removes both keys once", func(t *testing.T) {
		st := newStore(t)
		in := newSession(1)
		_, err := st.Save(ctx, in)
		require.NoError(t, err)

		n, err := st.DeleteByRefreshToken(ctx, in.RefreshToken)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = st.DeleteByRefreshToken(ctx, in.RefreshToken)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		s, err := st.FindByAccessToken(ctx, in.AccessToken)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("concurrent deletes have a single winner", func(t *testing.T) {
		st := newStore(t)
		in := newSession(1)
		_, err := st.Save(ctx, in)
		require.NoError(t, err)

		const workers = 16
		start := make(chan struct{})
		var wg sync.WaitGroup
		var total atomic.Int64
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				n, err := st.DeleteByRefreshToken(ctx, in.RefreshToken)
				assert.NoError(t, err)
				total.Add(n)
			}()
		}
		close(start)
		wg.Wait()

		assert.EqualValues(t, 1, total.Load())
	})
}

func runBlacklistSuite(t *testing.T, newStore func(t *testing.T) auth.BlacklistStore) {
	ctx := context.Background()

	t.Run("add is idempotent", func(t *testing.T) {
		bl := newStore(t)
		require.NoError(t, bl.Add(ctx, "tok", exp(100)))
		require.NoError(t, bl.Add(ctx, "tok", exp(100)))

		ok, err := bl.Contains(ctx, "tok")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = bl.Contains(ctx, "other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sweep removes only entries at or past the watermark", func(t *testing.T) {
		bl := newStore(t)
		require.NoError(t, bl.Add(ctx, "past", exp(90)))
		require.NoError(t, bl.Add(ctx, "now", exp(100)))
		require.NoError(t, bl.Add(ctx, "future", exp(101)))
		require.NoError(t, bl.Add(ctx, "forever", nil))

		n, err := bl.SweepExpired(ctx, 100)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		for tok, want := range map[string]bool{"past": false, "now": false, "future": true, "forever": true} {
			ok, err := bl.Contains(ctx, tok)
			require.NoError(t, err)
			assert.Equal(t, want, ok, tok)
		}

		// entries without a watermark survive any sweep
		_, err = bl.SweepExpired(ctx, 1<<40)
		require.NoError(t, err)
		ok, err := bl.Contains(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		bl := newStore(t)
		require.NoError(t, bl.Add(ctx, "a", exp(10)))
		require.NoError(t, bl.Add(ctx, "b", exp(20)))

		n, err := bl.SweepExpired(ctx, 15)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = bl.SweepExpired(ctx, 15)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		okA, _ := bl.Contains(ctx, "a")
		okB, _ := bl.Contains(ctx, "b")
		assert.False(t, okA)
		assert.True(t, okB)
	})

	t.Run("re-add never shortens the watermark", func(t *testing.T) {
		bl := newStore(t)
		require.NoError(t, bl.Add(ctx, "later", exp(200)))
		require.NoError(t, bl.Add(ctx, "later", exp(50)))
		require.NoError(t, bl.Add(ctx, "unbounded", exp(50)))
		require.NoError(t, bl.Add(ctx, "unbounded", nil))
		require.NoError(t, bl.Add(ctx, "unbounded", exp(60)))

		_, err := bl.SweepExpired(ctx, 100)
		require.NoError(t, err)

		ok, _ := bl.Contains(ctx, "later")
		assert.True(t, ok)
		ok, _ = bl.Contains(ctx, "unbounded")
		assert.True(t, ok)

		_, err = bl.SweepExpired(ctx, 200)
		require.NoError(t, err)
		ok, _ = bl.Contains(ctx, "later")
		assert.False(t, ok)
	})

	t.Run("remove purges entries manually", func(t *testing.T) {
		bl := newStore(t)
		require.NoError(t, bl.Add(ctx, "forever", nil))
		require.NoError(t, bl.Add(ctx, "timed", exp(10)))

		removed, err := bl.Remove(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = bl.Remove(ctx, "forever")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = bl.Remove(ctx, "timed")
		require.NoError(t, err)
		assert.True(t, removed)

		n, err := bl.SweepExpired(ctx, 100)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("adds are not lost under concurrent sweeps", func(t *testing.T) {
		bl := newStore(t)
		const adders = 8
		const perAdder = 25

		stop := make(chan struct{})
		var sweeper sync.WaitGroup
		sweeper.Add(1)
		go func() {
			defer sweeper.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, err := bl.SweepExpired(ctx, 1000)
					assert.NoError(t, err)
				}
			}
		}()

		var wg sync.WaitGroup
		for a := 0; a < adders; a++ {
			wg.Add(1)
			go func(a int) {
				defer wg.Done()
				for i := 0; i < perAdder; i++ {
					assert.NoError(t, bl.Add(ctx, fmt.Sprintf("tok-%d-%d", a, i), exp(5000)))
				}
			}(a)
		}
		wg.Wait()
		close(stop)
		sweeper.Wait()

		for a := 0; a < adders; a++ {
			for i := 0; i < perAdder; i++ {
				ok, err := bl.Contains(ctx, fmt.Sprintf("tok-%d-%d", a, i))
				require.NoError(t, err)
				require.True(t, ok)
			}
		}
	})
}
