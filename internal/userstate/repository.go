package userstate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/codec"
	"github.com/openedx/edx-platform-sub027/internal/l1"
	"github.com/openedx/edx-platform-sub027/internal/l2"
	"github.com/openedx/edx-platform-sub027/internal/l3"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
)

const (
	// DefaultInvalidationChannel carries L1 invalidations between peers.
	DefaultInvalidationChannel = "videostate:invalidate"

	l2Kind   = "userstate"
	numLocks = 64
)

// Repository errors.
var (
	ErrNotFound = errors.New("userstate: not found")
	ErrClosed   = errors.New("userstate: repository closed")
)

// Options configures a Repository. Any tier may be nil.
type Options struct {
	L1 *l1.Store[Record]
	L2 *l2.Store
	L3 *l3.Store

	L2TTL               time.Duration // 0 keeps records without expiry
	InvalidationChannel string

	FlushInterval  time.Duration // default 500ms
	FlushThreshold int           // default 100
	MaxRetries     int           // default 5

	Clock   clock.Clock
	Logger  logging.Logger
	Metrics metrics.MetricsRecorder
}

func (o *Options) defaults() {
	if o.InvalidationChannel == "" {
		o.InvalidationChannel = DefaultInvalidationChannel
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 100
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
}

// invalidation is the pub/sub payload telling peers to drop an L1 entry.
type invalidation struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Op     string `json:"op"` // "set", "delete" or "purge" (Key is a user prefix)
}

// dirtyRecord is a playhead update waiting for its L3 write.
type dirtyRecord struct {
	rec     Record
	retries int
	lastErr error
}

// Repository reads and writes Records across the configured tiers.
// Playhead-only saves are written behind to L3; every other save is
// written through.
type Repository struct {
	opts  Options
	id    string
	json  codec.JSON
	locks [numLocks]sync.Mutex

	// dirty is the flush queue; pending keeps the newest queued record per
	// key, including ones a Flush has taken, until it reaches L3 or a
	// write-through supersedes it. Both are guarded by dirtyMu.
	dirtyMu    sync.Mutex
	dirty      map[string]*dirtyRecord
	pending    map[string]*dirtyRecord
	dirtyCount atomic.Int64
	flushCh    chan struct{}

	started atomic.Bool
	closed  atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRepository creates a Repository. Call Start to run the background
// subscriber and flusher.
func NewRepository(opts Options) *Repository {
	opts.defaults()
	return &Repository{
		opts:    opts,
		id:      uuid.NewString(),
		dirty:   make(map[string]*dirtyRecord),
		pending: make(map[string]*dirtyRecord),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the invalidation subscriber (when L2 is set) and the
// write-behind flusher (when L3 is set). Calling it again is a no-op.
func (r *Repository) Start() {
	if r.started.Swap(true) {
		return
	}
	if r.opts.L2 != nil {
		r.wg.Add(1)
		go r.subscribeLoop()
	}
	if r.opts.L3 != nil {
		r.wg.Add(1)
		go r.writeBehindLoop()
	}
}

// Close stops the background loops and flushes pending playhead writes.
func (r *Repository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	close(r.stopCh)
	r.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return r.Flush(ctx)
}

// Get returns the record for (userID, blockID), trying L1, L2 then L3 and
// back-filling the faster tiers on a hit further down.
func (r *Repository) Get(ctx context.Context, userID, blockID string) (Record, error) {
	if r.closed.Load() {
		return Record{}, ErrClosed
	}
	return r.get(ctx, userID, blockID)
}

func (r *Repository) get(ctx context.Context, userID, blockID string) (Record, error) {
	key := Key(userID, blockID)

	if r.opts.L1 != nil {
		if rec, ok := r.opts.L1.Get(key); ok {
			r.opts.Metrics.RecordHit("l1")
			return rec, nil
		}
		r.opts.Metrics.RecordMiss("l1")
	}

	if r.opts.L2 != nil {
		start := r.opts.Clock.Now()
		var rec Record
		err := r.opts.L2.Get(ctx, l2Kind, key, &rec)
		r.opts.Metrics.RecordLatency("l2", "get", r.opts.Clock.Now().Sub(start))
		switch {
		case err == nil:
			r.opts.Metrics.RecordHit("l2")
			r.setL1(key, rec)
			return rec, nil
		case errors.Is(err, l2.ErrMiss):
			r.opts.Metrics.RecordMiss("l2")
		default:
			r.opts.Metrics.RecordError("l2", "get")
			r.opts.Logger.Warn("userstate: l2 read failed", "key", key, "error", err)
		}
	}

	if r.opts.L3 != nil {
		start := r.opts.Clock.Now()
		row, err := r.opts.L3.Get(ctx, userID, blockID)
		r.opts.Metrics.RecordLatency("l3", "get", r.opts.Clock.Now().Sub(start))
		if errors.Is(err, l3.ErrNotFound) {
			r.opts.Metrics.RecordMiss("l3")
			return Record{}, ErrNotFound
		}
		if err != nil {
			r.opts.Metrics.RecordError("l3", "get")
			return Record{}, err
		}
		var rec Record
		if err := r.json.Unmarshal(row.State, &rec); err != nil {
			return Record{}, fmt.Errorf("userstate: decode %s: %w", key, err)
		}
		rec.UserID, rec.BlockID = userID, blockID
		r.opts.Metrics.RecordHit("l3")
		r.setL2(ctx, key, rec)
		r.setL1(key, rec)
		return rec, nil
	}
	return Record{}, ErrNotFound
}

// Save applies u to the stored record (or a fresh one) and persists it.
// A speed change also updates the user's PreferencesBlock record.
func (r *Repository) Save(ctx context.Context, userID, blockID string, u Update) (Record, error) {
	if r.closed.Load() {
		return Record{}, ErrClosed
	}
	now := r.opts.Clock.Now().UTC()

	rec, err := r.modify(ctx, userID, blockID, func(rec *Record) { u.Apply(rec, now) }, u.PositionOnly())
	if err != nil {
		return Record{}, err
	}
	if u.Speed != nil && blockID != PreferencesBlock {
		speed := *u.Speed
		_, err := r.modify(ctx, userID, PreferencesBlock, func(p *Record) {
			p.GlobalSpeed = &speed
			p.UpdatedAt = now
		}, false)
		if err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Metadata loads the block and preference records and builds the player
// metadata, falling back to defaults for anything never saved.
func (r *Repository) Metadata(ctx context.Context, userID, blockID string, d MetadataDefaults) (Metadata, error) {
	if r.closed.Load() {
		return Metadata{}, ErrClosed
	}
	rec, err := r.get(ctx, userID, blockID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Metadata{}, err
	}
	prefs, err := r.get(ctx, userID, PreferencesBlock)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Metadata{}, err
	}
	return BuildMetadata(rec, prefs, d), nil
}

// Delete removes the record from every tier.
func (r *Repository) Delete(ctx context.Context, userID, blockID string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	key := Key(userID, blockID)
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	r.dropDirty(key)

	if r.opts.L3 != nil {
		if err := r.opts.L3.Delete(ctx, userID, blockID); err != nil {
			r.opts.Metrics.RecordError("l3", "delete")
			return err
		}
	}
	if r.opts.L2 != nil {
		if err := r.opts.L2.Delete(ctx, l2Kind, key); err != nil {
			r.opts.Logger.Warn("userstate: l2 delete failed", "key", key, "error", err)
		}
	}
	if r.opts.L1 != nil {
		r.opts.L1.Delete(key)
	}
	r.publish(ctx, key, "delete")
	return nil
}

// ForgetUser removes every record held for userID, preferences included,
// and returns the blocks cleared. Without L3 only the blocks this node has
// cached or queued are found in L2.
func (r *Repository) ForgetUser(ctx context.Context, userID string) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	prefix := Key(userID, "")
	seen := map[string]struct{}{PreferencesBlock: {}}

	r.dirtyMu.Lock()
	for key, d := range r.pending {
		if strings.HasPrefix(key, prefix) {
			seen[d.rec.BlockID] = struct{}{}
		}
	}
	r.dirtyMu.Unlock()

	if r.opts.L3 != nil {
		rows, err := r.opts.L3.ListByUser(ctx, userID)
		if err != nil {
			r.opts.Metrics.RecordError("l3", "list")
			return nil, err
		}
		for _, row := range rows {
			seen[row.BlockID] = struct{}{}
		}
	}

	blocks := make([]string, 0, len(seen))
	for b := range seen {
		blocks = append(blocks, b)
	}
	sort.Strings(blocks)
	for _, b := range blocks {
		if err := r.Delete(ctx, userID, b); err != nil {
			return nil, err
		}
	}
	if r.opts.L1 != nil {
		r.opts.L1.DeletePrefix(prefix)
	}
	r.publish(ctx, prefix, "purge")
	r.opts.Logger.Info("userstate: forgot user", "user", userID, "blocks", len(blocks))
	return blocks, nil
}

// DirtyCount reports playhead records waiting for their L3 write.
func (r *Repository) DirtyCount() int64 { return r.dirtyCount.Load() }

// Ping checks every configured remote tier.
func (r *Repository) Ping(ctx context.Context) error {
	var errs []error
	if r.opts.L2 != nil {
		if err := r.opts.L2.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if r.opts.L3 != nil {
		if err := r.opts.L3.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Repository) modify(ctx context.Context, userID, blockID string, fn func(*Record), behind bool) (Record, error) {
	key := Key(userID, blockID)
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	rec, ok := r.pendingRecord(key)
	if !ok {
		var err error
		rec, err = r.get(ctx, userID, blockID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Record{}, err
		}
	}
	rec.UserID, rec.BlockID = userID, blockID
	fn(&rec)

	if behind && r.opts.L3 != nil {
		r.setL1(key, rec)
		r.setL2(ctx, key, rec)
		r.queueDirty(key, rec)
		r.publish(ctx, key, "set")
		return rec, nil
	}

	if r.opts.L3 != nil {
		if err := r.writeL3(ctx, rec); err != nil {
			return Record{}, err
		}
		// rec was built on any queued playhead; drop it so a later flush
		// cannot overwrite this write.
		r.dropDirty(key)
	}
	r.setL2(ctx, key, rec)
	r.setL1(key, rec)
	r.publish(ctx, key, "set")
	return rec, nil
}

func (r *Repository) writeL3(ctx context.Context, rec Record) error {
	state, err := r.json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("userstate: encode: %w", err)
	}
	start := r.opts.Clock.Now()
	err = r.opts.L3.Upsert(ctx, l3.Row{UserID: rec.UserID, BlockID: rec.BlockID, State: state, UpdatedAt: rec.UpdatedAt})
	r.opts.Metrics.RecordLatency("l3", "upsert", r.opts.Clock.Now().Sub(start))
	if err != nil {
		r.opts.Metrics.RecordError("l3", "upsert")
	}
	return err
}

func (r *Repository) setL1(key string, rec Record) {
	if r.opts.L1 != nil {
		r.opts.L1.Set(key, rec, 0)
	}
}

func (r *Repository) setL2(ctx context.Context, key string, rec Record) {
	if r.opts.L2 == nil {
		return
	}
	if err := r.opts.L2.Set(ctx, l2Kind, key, rec, r.opts.L2TTL); err != nil {
		r.opts.Metrics.RecordError("l2", "set")
		r.opts.Logger.Warn("userstate: l2 write failed", "key", key, "error", err)
	}
}

func (r *Repository) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.locks[h.Sum32()%numLocks]
}
