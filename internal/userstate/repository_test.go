package userstate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/l1"
	"github.com/openedx/edx-platform-sub027/internal/l2"
	"github.com/openedx/edx-platform-sub027/internal/l3"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newL1(t *testing.T) *l1.Store[userstate.Record] {
	t.Helper()
	s := l1.New(l1.Options[userstate.Record]{TTL: time.Hour})
	t.Cleanup(s.Close)
	return s
}

func newL2(t *testing.T, mr *miniredis.Miniredis) *l2.Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return l2.New(l2.Options{Client: client})
}

func ptr[T any](v T) *T { return &v }

func TestRepository_SaveAndGet_CacheTiers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr), Clock: clock.NewMock(t0)})
	t.Cleanup(func() { _ = repo.Close() })

	rec, err := repo.Save(ctx, "u1", "b1", userstate.Update{Speed: ptr(1.5), TranscriptLanguage: ptr("uk")})
	require.NoError(t, err)
	assert.Equal(t, 1.5, *rec.Speed)
	assert.Equal(t, t0, rec.UpdatedAt)

	got, err := repo.Get(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "uk", got.TranscriptLanguage)

	prefs, err := repo.Get(ctx, "u1", userstate.PreferencesBlock)
	require.NoError(t, err)
	assert.Equal(t, 1.5, *prefs.GlobalSpeed)

	assert.True(t, mr.Exists("videostate:userstate:u1|b1"))
}

func TestRepository_GetMissing(t *testing.T) {
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t)})
	_, err := repo.Get(context.Background(), "u1", "nothing")
	assert.ErrorIs(t, err, userstate.ErrNotFound)
}

func TestRepository_L2BackfillsL1(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := newL2(t, mr)

	writer := userstate.NewRepository(userstate.Options{L2: store})
	_, err := writer.Save(ctx, "u1", "b1", userstate.Update{AutoAdvance: ptr(true)})
	require.NoError(t, err)

	cache := newL1(t)
	reader := userstate.NewRepository(userstate.Options{L1: cache, L2: store})
	rec, err := reader.Get(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.True(t, *rec.AutoAdvance)

	_, ok := cache.Get(userstate.Key("u1", "b1"))
	assert.True(t, ok)
}

func TestRepository_WriteThroughToL3(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", "b1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO video_user_state`).
		WithArgs("u1", "b1", pgxmock.AnyArg(), t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", userstate.PreferencesBlock).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO video_user_state`).
		WithArgs("u1", userstate.PreferencesBlock, pgxmock.AnyArg(), t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := userstate.NewRepository(userstate.Options{L3: l3.New(mock, nil), Clock: clock.NewMock(t0)})
	_, err = repo.Save(ctx, "u1", "b1", userstate.Update{Speed: ptr(2.0)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, repo.DirtyCount())
}

func TestRepository_WriteThroughError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", "b1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO video_user_state`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	cache := newL1(t)
	repo := userstate.NewRepository(userstate.Options{L1: cache, L3: l3.New(mock, nil)})
	_, err = repo.Save(context.Background(), "u1", "b1", userstate.Update{AutoAdvance: ptr(true)})
	require.Error(t, err)

	_, ok := cache.Get(userstate.Key("u1", "b1"))
	assert.False(t, ok, "failed write must not reach the cache")
}

func TestRepository_PlayheadWriteBehind(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", "b1").WillReturnError(pgx.ErrNoRows)

	cache := newL1(t)
	repo := userstate.NewRepository(userstate.Options{L1: cache, L3: l3.New(mock, nil), Clock: clock.NewMock(t0)})

	rec, err := repo.Save(ctx, "u1", "b1", userstate.Update{SavedVideoPosition: ptr(42 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, rec.SavedVideoPosition)
	assert.Equal(t, int64(1), repo.DirtyCount())

	// A second playhead update coalesces with the first.
	_, err = repo.Save(ctx, "u1", "b1", userstate.Update{SavedVideoPosition: ptr(50 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.DirtyCount())
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(`INSERT INTO video_user_state`).
		WithArgs("u1", "b1", pgxmock.AnyArg(), t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.Flush(ctx))
	assert.Zero(t, repo.DirtyCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FlushRetries(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", "b1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO video_user_state`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("timeout"))

	repo := userstate.NewRepository(userstate.Options{L1: newL1(t), L3: l3.New(mock, nil), MaxRetries: 1})
	_, err = repo.Save(ctx, "u1", "b1", userstate.Update{SavedVideoPosition: ptr(time.Second)})
	require.NoError(t, err)

	require.Error(t, repo.Flush(ctx))
	assert.Equal(t, int64(1), repo.DirtyCount(), "failed record is re-queued")

	// Retry budget spent: the record is dropped without another write.
	require.NoError(t, repo.Flush(ctx))
	assert.Zero(t, repo.DirtyCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_L3BackfillsCaches(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT state, updated_at FROM video_user_state`).
		WithArgs("u1", "b1").
		WillReturnRows(pgxmock.NewRows([]string{"state", "updated_at"}).
			AddRow([]byte(`{"saved_video_position":10000000000,"transcript_language":"uk"}`), t0))

	mr := miniredis.RunT(t)
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr), L3: l3.New(mock, nil)})

	rec, err := repo.Get(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, rec.SavedVideoPosition)
	assert.Equal(t, "uk", rec.TranscriptLanguage)

	// Served from L1; no further query is expected.
	_, err = repo.Get(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, mr.Exists("videostate:userstate:u1|b1"))
}

func TestRepository_Metadata(t *testing.T) {
	ctx := context.Background()
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t)})

	_, err := repo.Save(ctx, "u1", "b1", userstate.Update{Speed: ptr(0.75), SavedVideoPosition: ptr(30 * time.Second)})
	require.NoError(t, err)

	m, err := repo.Metadata(ctx, "u1", "b2", userstate.MetadataDefaults{SaveStateURL: "/save"})
	require.NoError(t, err)
	assert.Nil(t, m.Speed, "speed is per block")
	assert.Equal(t, 0.75, m.GeneralSpeed, "general speed follows the user")
	assert.Equal(t, "/save", m.SaveStateURL)

	m, err = repo.Metadata(ctx, "u1", "b1", userstate.MetadataDefaults{})
	require.NoError(t, err)
	assert.Equal(t, 30.0, m.SavedVideoPosition)
	assert.Equal(t, 0.75, *m.Speed)
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr)})

	_, err := repo.Save(ctx, "u1", "b1", userstate.Update{AutoAdvance: ptr(false)})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "u1", "b1"))

	_, err = repo.Get(ctx, "u1", "b1")
	assert.ErrorIs(t, err, userstate.ErrNotFound)
	assert.False(t, mr.Exists("videostate:userstate:u1|b1"))
}

func TestRepository_PeerInvalidation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr)})
	b := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr)})
	a.Start()
	t.Cleanup(func() { _ = a.Close() })

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(userstate.DefaultInvalidationChannel)[userstate.DefaultInvalidationChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err := b.Save(ctx, "u1", "b1", userstate.Update{Speed: ptr(1.0)})
	require.NoError(t, err)
	rec, err := a.Get(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, *rec.Speed)

	_, err = b.Save(ctx, "u1", "b1", userstate.Update{Speed: ptr(2.0)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := a.Get(ctx, "u1", "b1")
		return err == nil && *rec.Speed == 2.0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRepository_Closed(t *testing.T) {
	repo := userstate.NewRepository(userstate.Options{L1: newL1(t)})
	repo.Start()
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	_, err := repo.Get(context.Background(), "u1", "b1")
	assert.ErrorIs(t, err, userstate.ErrClosed)
	_, err = repo.Save(context.Background(), "u1", "b1", userstate.Update{})
	assert.ErrorIs(t, err, userstate.ErrClosed)
}

func TestRepository_ForgetUser(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT block_id, state, updated_at FROM video_user_state`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"block_id", "state", "updated_at"}).
			AddRow("b1", []byte(`{}`), t0).
			AddRow("b2", []byte(`{}`), t0))
	for _, block := range []string{userstate.PreferencesBlock, "b1", "b2"} {
		mock.ExpectExec(`DELETE FROM video_user_state`).
			WithArgs("u1", block).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
	}

	cache := newL1(t)
	store := newL2(t, mr)
	cache.Set(userstate.Key("u1", "b1"), userstate.Record{UserID: "u1", BlockID: "b1"}, 0)
	cache.Set(userstate.Key("u1", "only-cached"), userstate.Record{UserID: "u1"}, 0)
	cache.Set(userstate.Key("u2", "b1"), userstate.Record{UserID: "u2"}, 0)
	require.NoError(t, store.Set(ctx, "userstate", userstate.Key("u1", "b2"), userstate.Record{UserID: "u1"}, 0))

	repo := userstate.NewRepository(userstate.Options{L1: cache, L2: store, L3: l3.New(mock, nil)})
	blocks, err := repo.ForgetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{userstate.PreferencesBlock, "b1", "b2"}, blocks)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, ok := cache.Get(userstate.Key("u1", "only-cached"))
	assert.False(t, ok)
	_, ok = cache.Get(userstate.Key("u2", "b1"))
	assert.True(t, ok, "other learners untouched")
	assert.False(t, mr.Exists("videostate:userstate:u1|b2"))
}

func TestRepository_ForgetUserPurgesPeers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	peerCache := newL1(t)
	a := userstate.NewRepository(userstate.Options{L1: peerCache, L2: newL2(t, mr)})
	b := userstate.NewRepository(userstate.Options{L1: newL1(t), L2: newL2(t, mr)})
	a.Start()
	t.Cleanup(func() { _ = a.Close() })

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(userstate.DefaultInvalidationChannel)[userstate.DefaultInvalidationChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	peerCache.Set(userstate.Key("u1", "b9"), userstate.Record{UserID: "u1", BlockID: "b9"}, 0)
	_, err := b.ForgetUser(ctx, "u1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := peerCache.Get(userstate.Key("u1", "b9"))
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRepository_ForgetUserLeavesLookalikeIDs(t *testing.T) {
	ctx := context.Background()
	cache := newL1(t)
	repo := userstate.NewRepository(userstate.Options{L1: cache})

	cache.Set(userstate.Key("u", "b1"), userstate.Record{UserID: "u"}, 0)
	cache.Set(userstate.Key("u|x", "b1"), userstate.Record{UserID: "u|x"}, 0)
	assert.NotEqual(t, userstate.Key("u", "x|b1"), userstate.Key("u|x", "b1"))

	_, err := repo.ForgetUser(ctx, "u")
	require.NoError(t, err)

	_, ok := cache.Get(userstate.Key("u", "b1"))
	assert.False(t, ok)
	_, ok = cache.Get(userstate.Key("u|x", "b1"))
	assert.True(t, ok, "a user whose ID extends another's is untouched")
}
