// Package engine owns the in-memory cart state and reconciles it with the
// remote cart store. Mutations apply optimistically and persist to the local
// snapshot store before any network call; remote pushes happen in the
// background and failed pushes fall back to a scheduled full resync.
package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
	"github.com/raymonnguyen/baubiz-sub000/internal/localstore"
	"github.com/raymonnguyen/baubiz-sub000/internal/remote"
)

// ErrAuthRequired is returned when a mutation is attempted without an
// authenticated user. Callers surface it as an authentication prompt, not as
// a data error.
var ErrAuthRequired = errors.New("authentication required")

// RemoteCart is the remote operations the engine needs. The HTTP client in
// internal/remote implements it.
type RemoteCart interface {
	FetchAll(ctx context.Context) ([]domain.CartLine, error)
	Add(ctx context.Context, productID string, quantity int) (string, error)
	Update(ctx context.Context, remoteLineID string, quantity int) error
	Remove(ctx context.Context, remoteLineID string) error
	ClearAll(ctx context.Context) error
}

type Config struct {
	// MaxSyncRetries bounds the attempts in one resync sequence, the
	// triggering attempt included. After the bound the engine stops
	// auto-retrying and sets the persistent failed flag.
	MaxSyncRetries int

	// ResyncDelay is the wait between failed resync attempts.
	ResyncDelay time.Duration

	// PushRetryDelay is the wait before the full resync scheduled after a
	// failed targeted add/update/remove call.
	PushRetryDelay time.Duration

	// RemoteTimeout caps each background remote call.
	RemoteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSyncRetries <= 0 {
		c.MaxSyncRetries = 3
	}
	if c.ResyncDelay <= 0 {
		c.ResyncDelay = 2 * time.Second
	}
	if c.PushRetryDelay <= 0 {
		c.PushRetryDelay = 5 * time.Second
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 10 * time.Second
	}
	return c
}

// Status is the UI-facing snapshot of the sync state machine.
type Status struct {
	Loading    bool // initial load in progress
	Syncing    bool // any remote operation in flight
	SyncFailed bool // last sync failed; persisted across restarts
	RetryCount int
}

// Engine is the single owner of cart state for one user session. All reads
// and mutations go through its methods; the UI never touches lines directly.
type Engine struct {
	remote   RemoteCart
	store    localstore.Store
	cfg      Config
	onStatus func(Status)

	mu         sync.Mutex
	userID     string
	lines      map[string]*domain.CartLine
	remoteIDs  map[string]string // product id -> remote line id, agrees with lines
	loading    bool
	inflight   int
	retryCount int
	syncFailed bool
	online     bool
	session    int // bumped on Initialize; invalidates stale completions

	resync scheduler
}

func New(remoteCart RemoteCart, store localstore.Store, cfg Config) *Engine {
	return &Engine{
		remote:    remoteCart,
		store:     store,
		cfg:       cfg.withDefaults(),
		lines:     make(map[string]*domain.CartLine),
		remoteIDs: make(map[string]string),
		online:    true,
	}
}

// SetStatusListener registers a callback invoked after every status change.
// Best-effort notification only; the callback may run from multiple
// goroutines and must not call back into the engine synchronously.
func (e *Engine) SetStatusListener(fn func(Status)) {
	e.onStatus = fn
}

// Initialize resets the engine for userID and loads its cart. With an empty
// userID the engine resets to an inert, unauthenticated state. Otherwise the
// remote store is the source of truth; if it is unreachable the last local
// snapshot is used and the sync-failed flag is raised instead of an error.
func (e *Engine) Initialize(ctx context.Context, userID string) error {
	e.resync.cancel()

	e.mu.Lock()
	e.session++
	session := e.session
	e.userID = userID
	e.lines = make(map[string]*domain.CartLine)
	e.remoteIDs = make(map[string]string)
	e.retryCount = 0
	e.syncFailed = false
	e.loading = userID != ""
	e.mu.Unlock()
	e.notify()

	if userID == "" {
		return nil
	}

	lines, err := e.remote.FetchAll(ctx)
	if err != nil {
		log.Printf("cart fetch failed, falling back to local snapshot: %v", err)
		lines, _ = e.store.LoadCart(userID)
	}

	e.mu.Lock()
	if e.session != session {
		e.mu.Unlock()
		return nil // superseded by a newer Initialize
	}
	for i := range lines {
		line := lines[i]
		e.lines[line.ProductID] = &line
		if line.RemoteLineID != "" {
			e.remoteIDs[line.ProductID] = line.RemoteLineID
		}
	}
	e.syncFailed = err != nil
	e.flagLocked(userID, err != nil)
	if err == nil {
		e.persistLocked(userID)
	}
	e.loading = false
	e.mu.Unlock()
	e.notify()

	return nil
}

// Items returns a copy of the cart lines, ordered by add time.
func (e *Engine) Items() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linesLocked()
}

// Total returns the sum of unit price times quantity.
func (e *Engine) Total() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Total(e.linesLocked())
}

// ItemCount returns the sum of quantities.
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ItemCount(e.linesLocked())
}

// Status reports the current sync state. SyncFailed also consults the
// persisted flag so a second process on the same device sees the degraded
// state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	failed := e.syncFailed
	if !failed && e.userID != "" {
		failed = e.store.SyncFailed(e.userID)
	}
	return Status{
		Loading:    e.loading,
		Syncing:    e.inflight > 0,
		SyncFailed: failed,
		RetryCount: e.retryCount,
	}
}

// AddItem applies the optimistic add and pushes it to the remote store in
// the background. A repeated add for the same product increments the
// existing line instead of creating a duplicate.
func (e *Engine) AddItem(ctx context.Context, product domain.Product, quantity int) error {
	quantity = domain.ClampQuantity(quantity)

	e.mu.Lock()
	if e.userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	userID := e.userID
	session := e.session

	line, ok := e.lines[product.ID]
	if ok {
		line.Quantity += quantity
	} else {
		l := domain.NewLine(product, quantity)
		e.lines[product.ID] = &l
		line = &l
	}
	remoteID := line.RemoteLineID
	newQuantity := line.Quantity

	e.persistLocked(userID)
	e.inflight++
	e.mu.Unlock()
	e.notify()

	go e.pushLine(userID, session, product.ID, remoteID, newQuantity)
	return nil
}

// UpdateQuantity sets the quantity of an existing line, clamped to the floor
// of 1. Removal goes through RemoveItem, never through a zero quantity.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	quantity = domain.ClampQuantity(quantity)

	e.mu.Lock()
	if e.userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	userID := e.userID
	session := e.session

	line, ok := e.lines[productID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	line.Quantity = quantity
	remoteID := line.RemoteLineID
	e.persistLocked(userID)

	if remoteID == "" {
		// Never synced; the scheduled full resync carries the change.
		e.scheduleResync(e.cfg.PushRetryDelay, userID, session)
		e.mu.Unlock()
		e.notify()
		return nil
	}

	e.inflight++
	e.mu.Unlock()
	e.notify()

	go e.pushLine(userID, session, productID, remoteID, quantity)
	return nil
}

// RemoveItem removes the line locally and deletes the remote row. If the
// targeted delete fails, or no remote id is known yet, a full resync is
// scheduled instead of retrying the delete.
func (e *Engine) RemoveItem(ctx context.Context, productID string) error {
	e.mu.Lock()
	if e.userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	userID := e.userID
	session := e.session

	line, ok := e.lines[productID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	remoteID := line.RemoteLineID
	delete(e.lines, productID)
	delete(e.remoteIDs, productID)
	e.persistLocked(userID)

	if remoteID == "" {
		e.scheduleResync(e.cfg.PushRetryDelay, userID, session)
		e.mu.Unlock()
		e.notify()
		return nil
	}

	e.inflight++
	e.mu.Unlock()
	e.notify()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RemoteTimeout)
		defer cancel()

		err := e.remote.Remove(ctx, remoteID)
		if errors.Is(err, remote.ErrNotFound) {
			err = nil // already gone remotely
		}
		e.finishPush(userID, session, err)
	}()
	return nil
}

// ClearCart empties the cart locally. It does not clear the remote store by
// itself; callers that need that invoke SyncCart afterwards, which clears
// remotely and re-pushes the (now empty) local state.
func (e *Engine) ClearCart(ctx context.Context) error {
	e.mu.Lock()
	if e.userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	userID := e.userID
	e.lines = make(map[string]*domain.CartLine)
	e.remoteIDs = make(map[string]string)
	e.persistLocked(userID)
	e.mu.Unlock()
	e.notify()

	return nil
}

// SyncCart is the manual full resync trigger. It clears the failed flag
// optimistically, resets the retry sequence and runs one attempt; further
// attempts are scheduled automatically on failure, up to the configured
// bound.
func (e *Engine) SyncCart(ctx context.Context) error {
	e.resync.cancel()

	e.mu.Lock()
	if e.userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	userID := e.userID
	e.retryCount = 0
	e.syncFailed = false
	e.flagLocked(userID, false)
	e.mu.Unlock()
	e.notify()

	return e.runSync(ctx)
}

// SetOnline records connectivity transitions. Regaining connectivity starts
// a fresh resync sequence, independent of any exhausted retry bound.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	userID := e.userID
	if !online || was || userID == "" {
		e.mu.Unlock()
		return
	}
	e.retryCount = 0
	e.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RemoteTimeout)
		defer cancel()
		if err := e.runSync(ctx); err != nil {
			log.Printf("resync after reconnect failed: %v", err)
		}
	}()
}

// Close cancels any pending resync timer.
func (e *Engine) Close() {
	e.resync.cancel()
}

// runSync performs one full resync attempt: clear every remote line, then
// re-push the current local lines. On failure it increments the retry
// counter and either schedules the next attempt or goes terminal.
func (e *Engine) runSync(ctx context.Context) error {
	e.mu.Lock()
	userID := e.userID
	if userID == "" {
		e.mu.Unlock()
		return ErrAuthRequired
	}
	session := e.session
	items := e.linesLocked()
	e.inflight++
	e.mu.Unlock()
	e.notify()

	err := e.pushAll(ctx, userID, session, items)

	e.mu.Lock()
	e.inflight--
	if e.userID != userID || e.session != session {
		e.mu.Unlock()
		e.notify()
		return err
	}
	if err != nil {
		e.retryCount++
		if e.retryCount < e.cfg.MaxSyncRetries {
			e.scheduleResync(e.cfg.ResyncDelay, userID, session)
		} else {
			// Terminal until a manual SyncCart resets the sequence.
			e.syncFailed = true
			e.flagLocked(userID, true)
		}
	} else {
		e.retryCount = 0
		e.syncFailed = false
		e.flagLocked(userID, false)
		e.persistLocked(userID)
	}
	e.mu.Unlock()
	e.notify()

	if err != nil {
		log.Printf("cart resync failed for user %s: %v", userID, err)
	}
	return err
}

func (e *Engine) pushAll(ctx context.Context, userID string, session int, items []domain.CartLine) error {
	if err := e.remote.ClearAll(ctx); err != nil {
		return err
	}

	ids := make(map[string]string, len(items))
	for _, item := range items {
		id, err := e.remote.Add(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		ids[item.ProductID] = id
	}

	e.mu.Lock()
	if e.userID == userID && e.session == session {
		for productID, id := range ids {
			if line, ok := e.lines[productID]; ok {
				line.RemoteLineID = id
				e.remoteIDs[productID] = id
			}
		}
	}
	e.mu.Unlock()
	return nil
}

// pushLine reconciles a single line: Add when no remote id is known yet,
// Update otherwise. Failures do not roll back the optimistic local change;
// they schedule a delayed full resync.
func (e *Engine) pushLine(userID string, session int, productID, remoteID string, quantity int) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RemoteTimeout)
	defer cancel()

	var err error
	if remoteID == "" {
		var id string
		id, err = e.remote.Add(ctx, productID, quantity)
		if err == nil {
			e.mu.Lock()
			if e.userID == userID && e.session == session {
				if line, ok := e.lines[productID]; ok {
					line.RemoteLineID = id
					e.remoteIDs[productID] = id
					e.persistLocked(userID)
				}
			}
			e.mu.Unlock()
		}
	} else {
		err = e.remote.Update(ctx, remoteID, quantity)
	}

	e.finishPush(userID, session, err)
}

func (e *Engine) finishPush(userID string, session int, err error) {
	e.mu.Lock()
	e.inflight--
	if err != nil && e.userID == userID && e.session == session {
		e.syncFailed = true
		e.flagLocked(userID, true)
		e.scheduleResync(e.cfg.PushRetryDelay, userID, session)
	}
	e.mu.Unlock()
	e.notify()

	if err != nil {
		log.Printf("cart push failed for user %s: %v", userID, err)
	}
}

func (e *Engine) scheduleResync(delay time.Duration, userID string, session int) {
	e.resync.schedule(delay, func() {
		e.mu.Lock()
		stale := e.userID != userID || e.session != session
		e.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RemoteTimeout)
		defer cancel()
		e.runSync(ctx) // outcome handling and logging live in runSync
	})
}

// linesLocked snapshots the lines ordered by add time. Callers hold e.mu.
func (e *Engine) linesLocked() []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(e.lines))
	for _, line := range e.lines {
		lines = append(lines, *line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].AddedAt.Before(lines[j].AddedAt)
	})
	return lines
}

// persistLocked writes the local snapshot. Persistence failures are logged
// and never fail the user-facing operation. Callers hold e.mu.
func (e *Engine) persistLocked(userID string) {
	if err := e.store.SaveCart(userID, e.linesLocked()); err != nil {
		log.Printf("failed to persist cart snapshot for user %s: %v", userID, err)
	}
}

// flagLocked persists the cross-process sync-failed flag. Callers hold e.mu.
func (e *Engine) flagLocked(userID string, failed bool) {
	if err := e.store.SetSyncFailed(userID, failed); err != nil {
		log.Printf("failed to persist sync flag for user %s: %v", userID, err)
	}
}

func (e *Engine) notify() {
	if e.onStatus != nil {
		e.onStatus(e.Status())
	}
}
