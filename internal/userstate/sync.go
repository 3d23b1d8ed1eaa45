package userstate

import (
	"context"
	"fmt"
	"sort"
	"time"
)

func (r *Repository) publish(ctx context.Context, key, op string) {
	if r.opts.L2 == nil {
		return
	}
	b, err := r.json.Marshal(invalidation{Origin: r.id, Key: key, Op: op})
	if err != nil {
		return
	}
	if err := r.opts.L2.Publish(ctx, r.opts.InvalidationChannel, b); err != nil {
		r.opts.Logger.Debug("userstate: publish invalidation failed", "key", key, "error", err)
	}
}

func (r *Repository) subscribeLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		sub := r.opts.L2.Subscribe(ctx, r.opts.InvalidationChannel)
		func() {
			defer cancel()
			defer sub.Close()
			msgCh := sub.Channel()
			for {
				select {
				case <-r.stopCh:
					return
				case msg, ok := <-msgCh:
					if !ok {
						return
					}
					r.handleInvalidation(msg.Payload)
				}
			}
		}()
		select {
		case <-r.stopCh:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (r *Repository) handleInvalidation(payload string) {
	var msg invalidation
	if err := r.json.Unmarshal([]byte(payload), &msg); err != nil {
		r.opts.Logger.Warn("userstate: malformed invalidation message", "payload", payload, "error", err)
		return
	}
	if msg.Origin == r.id || r.opts.L1 == nil {
		return
	}
	switch msg.Op {
	case "set", "delete":
		r.opts.L1.Delete(msg.Key)
	case "purge":
		r.opts.L1.DeletePrefix(msg.Key)
	}
}

// queueDirty records rec for a later L3 write. Callers hold the key lock.
func (r *Repository) queueDirty(key string, rec Record) {
	d := &dirtyRecord{rec: rec}
	r.dirtyMu.Lock()
	r.dirty[key] = d
	r.pending[key] = d
	count := int64(len(r.dirty))
	r.dirtyMu.Unlock()
	r.dirtyCount.Store(count)
	r.opts.Metrics.RecordDirtyCount(count)

	if int(count) >= r.opts.FlushThreshold {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// pendingRecord returns the newest playhead queued for key that has not
// reached L3 yet. Callers hold the key lock.
func (r *Repository) pendingRecord(key string) (Record, bool) {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	if d, ok := r.pending[key]; ok {
		return d.rec, true
	}
	return Record{}, false
}

// dropDirty forgets any queued playhead for key, including one already
// taken by an in-progress Flush. Callers hold the key lock.
func (r *Repository) dropDirty(key string) {
	r.dirtyMu.Lock()
	delete(r.dirty, key)
	delete(r.pending, key)
	count := int64(len(r.dirty))
	r.dirtyMu.Unlock()
	r.dirtyCount.Store(count)
}

func (r *Repository) writeBehindLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		case <-r.flushCh:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = r.Flush(ctx)
		cancel()
	}
}

// Flush writes every pending playhead record to L3. Failed writes are
// re-queued until MaxRetries, then dropped with an error log. A record
// superseded since it was taken (re-queued or written through) is skipped.
func (r *Repository) Flush(ctx context.Context) error {
	if r.opts.L3 == nil {
		return nil
	}
	r.dirtyMu.Lock()
	if len(r.dirty) == 0 {
		r.dirtyMu.Unlock()
		return nil
	}
	snapshot := r.dirty
	r.dirty = make(map[string]*dirtyRecord, len(snapshot))
	r.dirtyCount.Store(0)
	r.dirtyMu.Unlock()

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var failed []error
	for _, key := range keys {
		if err := r.flushOne(ctx, key, snapshot[key]); err != nil {
			failed = append(failed, err)
		}
	}

	r.dirtyMu.Lock()
	count := int64(len(r.dirty))
	r.dirtyMu.Unlock()
	r.dirtyCount.Store(count)
	r.opts.Metrics.RecordDirtyCount(count)

	if len(failed) > 0 {
		return fmt.Errorf("userstate: %d playhead writes failed: %w", len(failed), failed[0])
	}
	return nil
}

func (r *Repository) flushOne(ctx context.Context, key string, d *dirtyRecord) error {
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	r.dirtyMu.Lock()
	current := r.pending[key]
	r.dirtyMu.Unlock()
	if current != d {
		return nil
	}

	if d.retries >= r.opts.MaxRetries {
		r.opts.Logger.Error("userstate: write-behind max retries exceeded",
			"key", key, "error", d.lastErr)
		r.dropDirty(key)
		return nil
	}

	err := r.writeL3(ctx, d.rec)

	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	if err == nil {
		delete(r.pending, key)
		return nil
	}
	d.retries++
	d.lastErr = err
	// Nothing newer can have been queued while the key lock is held.
	r.dirty[key] = d
	return err
}
