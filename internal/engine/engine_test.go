package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
	"github.com/raymonnguyen/baubiz-sub000/internal/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("remote cart unavailable")

type mockRow struct {
	productID string
	quantity  int
}

// mockRemote keeps real remote-side state so resyncs can be verified, with
// per-operation error injection.
type mockRemote struct {
	mu     sync.Mutex
	rows   map[string]mockRow
	nextID int

	fetchErr  error
	addErr    error
	updateErr error
	removeErr error
	clearErr  error

	fetchCalls  int
	addCalls    int
	updateCalls int
	removeCalls int
	clearCalls  int

	addGate chan struct{} // when non-nil, Add blocks until it is closed
}

func newMockRemote() *mockRemote {
	return &mockRemote{rows: make(map[string]mockRow)}
}

func (m *mockRemote) FetchAll(context.Context) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var lines []domain.CartLine
	for id, row := range m.rows {
		lines = append(lines, domain.CartLine{
			ProductID:    row.productID,
			RemoteLineID: id,
			Quantity:     row.quantity,
		})
	}
	return lines, nil
}

func (m *mockRemote) Add(_ context.Context, productID string, quantity int) (string, error) {
	m.mu.Lock()
	gate := m.addGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.addErr != nil {
		return "", m.addErr
	}
	m.nextID++
	id := fmt.Sprintf("line-%d", m.nextID)
	m.rows[id] = mockRow{productID: productID, quantity: quantity}
	return id, nil
}

func (m *mockRemote) Update(_ context.Context, remoteLineID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	row, ok := m.rows[remoteLineID]
	if !ok {
		return errors.New("no such line")
	}
	row.quantity = quantity
	m.rows[remoteLineID] = row
	return nil
}

func (m *mockRemote) Remove(_ context.Context, remoteLineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.rows, remoteLineID)
	return nil
}

func (m *mockRemote) ClearAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.rows = make(map[string]mockRow)
	return nil
}

func (m *mockRemote) failAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr, m.addErr, m.updateErr, m.removeErr, m.clearErr = err, err, err, err, err
}

func (m *mockRemote) heal() {
	m.failAll(nil)
}

func (m *mockRemote) quantityOf(productID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.productID == productID {
			return row.quantity, true
		}
	}
	return 0, false
}

func (m *mockRemote) clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

func (m *mockRemote) counts() (adds, updates, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls, m.updateCalls, m.removeCalls
}

func testConfig() Config {
	return Config{
		MaxSyncRetries: 3,
		ResyncDelay:    5 * time.Millisecond,
		PushRetryDelay: 5 * time.Millisecond,
		RemoteTimeout:  time.Second,
	}
}

func setupEngine(t *testing.T) (*Engine, *mockRemote, *localstore.MemoryStore) {
	remoteCart := newMockRemote()
	store := localstore.NewMemoryStore()
	eng := New(remoteCart, store, testConfig())
	t.Cleanup(eng.Close)
	return eng, remoteCart, store
}

// setupSlowEngine uses delays long enough that a test can act between a
// failed push and the resync it scheduled.
func setupSlowEngine(t *testing.T) (*Engine, *mockRemote, *localstore.MemoryStore) {
	remoteCart := newMockRemote()
	store := localstore.NewMemoryStore()
	cfg := testConfig()
	cfg.ResyncDelay = 50 * time.Millisecond
	cfg.PushRetryDelay = 50 * time.Millisecond
	eng := New(remoteCart, store, cfg)
	t.Cleanup(eng.Close)
	return eng, remoteCart, store
}

func waitIdle(t *testing.T, eng *Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !eng.Status().Syncing
	}, time.Second, 2*time.Millisecond)
}

func product(id string, price float64) domain.Product {
	return domain.Product{ID: id, Title: "item " + id, Price: price}
}

func TestAddSameProductTwiceMergesLines(t *testing.T) {
	eng, _, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 3))

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestUpdateQuantityClampsToFloor(t *testing.T) {
	eng, _, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 4))

	require.NoError(t, eng.UpdateQuantity(context.Background(), "p1", 0))
	assert.Equal(t, 1, eng.Items()[0].Quantity)

	require.NoError(t, eng.UpdateQuantity(context.Background(), "p1", -5))
	assert.Equal(t, 1, eng.Items()[0].Quantity)
}

func TestAddIsOptimisticallyDurable(t *testing.T) {
	eng, remoteCart, store := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	// Block the remote add so the network call cannot have resolved yet.
	gate := make(chan struct{})
	remoteCart.mu.Lock()
	remoteCart.addGate = gate
	remoteCart.mu.Unlock()

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)

	snapshot, err := store.LoadCart("user1")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 2, snapshot[0].Quantity)

	close(gate)
	waitIdle(t, eng)
}

func TestInitializeFallsBackToLocalSnapshot(t *testing.T) {
	eng, remoteCart, store := setupEngine(t)

	require.NoError(t, store.SaveCart("user1", []domain.CartLine{
		{ProductID: "p1", Quantity: 2, UnitPrice: 10},
		{ProductID: "p2", Quantity: 1, UnitPrice: 4},
	}))
	remoteCart.fetchErr = errUnavailable

	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	assert.Len(t, eng.Items(), 2)
	assert.True(t, eng.Status().SyncFailed)
	assert.True(t, store.SyncFailed("user1"))
}

func TestInitializeRemoteWinsOverSnapshot(t *testing.T) {
	eng, remoteCart, store := setupEngine(t)

	require.NoError(t, store.SaveCart("user1", []domain.CartLine{
		{ProductID: "stale", Quantity: 9},
	}))
	require.NoError(t, store.SetSyncFailed("user1", true))
	remoteCart.rows["line-1"] = mockRow{productID: "p1", quantity: 3}

	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, "line-1", items[0].RemoteLineID)
	assert.False(t, eng.Status().SyncFailed) // stale flag cleared
}

func TestSyncRetriesUpToBoundThenGoesTerminal(t *testing.T) {
	eng, remoteCart, store := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	remoteCart.failAll(errUnavailable)
	require.Error(t, eng.SyncCart(context.Background()))

	// Triggering attempt plus auto-retries, three attempts in total.
	require.Eventually(t, func() bool {
		return remoteCart.clears() == 3
	}, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return eng.Status().SyncFailed
	}, time.Second, 2*time.Millisecond)

	// Terminal: no further auto-retries.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, remoteCart.clears())
	assert.Equal(t, 3, eng.Status().RetryCount)
	assert.True(t, store.SyncFailed("user1"))

	// A manual resync resets the sequence and succeeds once healed.
	remoteCart.heal()
	require.NoError(t, eng.SyncCart(context.Background()))
	assert.Equal(t, 4, remoteCart.clears())
	assert.False(t, eng.Status().SyncFailed)
	assert.Equal(t, 0, eng.Status().RetryCount)
	assert.False(t, store.SyncFailed("user1"))
}

func TestTotalAndItemCount(t *testing.T) {
	eng, _, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	require.NoError(t, eng.AddItem(context.Background(), product("p2", 5), 3))

	assert.Equal(t, 35.0, eng.Total())
	assert.Equal(t, 5, eng.ItemCount())
	waitIdle(t, eng)
}

func TestUnauthenticatedMutationsSignalAuthRequired(t *testing.T) {
	eng, _, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), ""))

	err := eng.AddItem(context.Background(), product("p1", 10), 1)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, eng.Items())

	assert.ErrorIs(t, eng.RemoveItem(context.Background(), "p1"), ErrAuthRequired)
	assert.ErrorIs(t, eng.UpdateQuantity(context.Background(), "p1", 2), ErrAuthRequired)
	assert.ErrorIs(t, eng.ClearCart(context.Background()), ErrAuthRequired)
	assert.ErrorIs(t, eng.SyncCart(context.Background()), ErrAuthRequired)

	// After signing in the same call succeeds.
	require.NoError(t, eng.Initialize(context.Background(), "user1"))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 1))
	assert.Len(t, eng.Items(), 1)
	waitIdle(t, eng)
}

func TestClearCartEmptiesLocalState(t *testing.T) {
	eng, _, store := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	waitIdle(t, eng)

	require.NoError(t, eng.ClearCart(context.Background()))

	assert.Empty(t, eng.Items())
	snapshot, err := store.LoadCart("user1")
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	// A different user on the same device must not see the old lines.
	require.NoError(t, eng.Initialize(context.Background(), "user2"))
	assert.Empty(t, eng.Items())
}

func TestSecondAddUsesUpdateOnceLineIDKnown(t *testing.T) {
	eng, remoteCart, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 1))
	waitIdle(t, eng)

	adds, updates, _ := remoteCart.counts()
	require.Equal(t, 1, adds)
	require.Equal(t, 0, updates)

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	waitIdle(t, eng)

	adds, updates, _ = remoteCart.counts()
	assert.Equal(t, 1, adds) // never a second remote row for the same product
	assert.Equal(t, 1, updates)

	qty, ok := remoteCart.quantityOf("p1")
	require.True(t, ok)
	assert.Equal(t, 3, qty)
}

func TestFailedPushSchedulesResyncThatHeals(t *testing.T) {
	eng, remoteCart, _ := setupSlowEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	remoteCart.mu.Lock()
	remoteCart.addErr = errUnavailable
	remoteCart.mu.Unlock()

	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))

	// The optimistic state stays; the failure raises the flag.
	require.Eventually(t, func() bool {
		return eng.Status().SyncFailed
	}, time.Second, 2*time.Millisecond)
	assert.Len(t, eng.Items(), 1)

	// The scheduled full resync reconciles once the remote recovers.
	remoteCart.heal()
	require.Eventually(t, func() bool {
		qty, ok := remoteCart.quantityOf("p1")
		return ok && qty == 2
	}, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return !eng.Status().SyncFailed
	}, time.Second, 2*time.Millisecond)
}

func TestRemoveItemDeletesRemoteLine(t *testing.T) {
	eng, remoteCart, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	waitIdle(t, eng)

	require.NoError(t, eng.RemoveItem(context.Background(), "p1"))
	waitIdle(t, eng)

	assert.Empty(t, eng.Items())
	_, _, removes := remoteCart.counts()
	assert.Equal(t, 1, removes)
	_, ok := remoteCart.quantityOf("p1")
	assert.False(t, ok)
}

func TestRemoveUnsyncedLineSchedulesResync(t *testing.T) {
	eng, remoteCart, _ := setupSlowEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	// Line never reaches the remote.
	remoteCart.mu.Lock()
	remoteCart.addErr = errUnavailable
	remoteCart.mu.Unlock()
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 1))
	waitIdle(t, eng)

	// Removing it before any sync replaces the pending resync timer; once
	// the remote recovers, the resync settles the (now empty) state.
	remoteCart.heal()
	require.NoError(t, eng.RemoveItem(context.Background(), "p1"))

	require.Eventually(t, func() bool {
		return remoteCart.clears() >= 1
	}, time.Second, 2*time.Millisecond)
	_, _, removes := remoteCart.counts()
	assert.Equal(t, 0, removes)
	assert.Empty(t, eng.Items())
}

func TestReconnectTriggersFreshSyncSequence(t *testing.T) {
	eng, remoteCart, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	remoteCart.failAll(errUnavailable)
	require.Error(t, eng.SyncCart(context.Background()))
	require.Eventually(t, func() bool {
		return eng.Status().SyncFailed // retry bound exhausted
	}, time.Second, 2*time.Millisecond)

	remoteCart.heal()
	eng.SetOnline(false)
	eng.SetOnline(true)

	require.Eventually(t, func() bool {
		return !eng.Status().SyncFailed
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, eng.Status().RetryCount)
}

func TestManualSyncClearsFlagOptimistically(t *testing.T) {
	eng, remoteCart, store := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	require.NoError(t, store.SetSyncFailed("user1", true))
	require.True(t, eng.Status().SyncFailed)

	// Gate ClearAll so we can observe the flag between the optimistic clear
	// and the attempt outcome.
	gate := make(chan struct{})
	remoteCart.mu.Lock()
	remoteCart.addGate = gate
	remoteCart.mu.Unlock()

	done := make(chan error, 1)
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 1))
	go func() { done <- eng.SyncCart(context.Background()) }()

	require.Eventually(t, func() bool {
		return !store.SyncFailed("user1")
	}, time.Second, 2*time.Millisecond)

	close(gate)
	require.NoError(t, <-done)
	waitIdle(t, eng)
	assert.False(t, eng.Status().SyncFailed)
}

func TestSyncPushesLocalLinesWholesale(t *testing.T) {
	eng, remoteCart, _ := setupEngine(t)

	// Remote starts with a row that no longer exists locally.
	remoteCart.rows["line-9"] = mockRow{productID: "ghost", quantity: 7}

	require.NoError(t, eng.Initialize(context.Background(), "user1"))
	require.NoError(t, eng.ClearCart(context.Background()))
	require.NoError(t, eng.AddItem(context.Background(), product("p1", 10), 2))
	waitIdle(t, eng)

	require.NoError(t, eng.SyncCart(context.Background()))

	_, ghostRemains := remoteCart.quantityOf("ghost")
	assert.False(t, ghostRemains)
	qty, ok := remoteCart.quantityOf("p1")
	require.True(t, ok)
	assert.Equal(t, 2, qty)

	// The resync reassigned remote line ids to current lines.
	items := eng.Items()
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].RemoteLineID)
}

func TestConcurrentAddsStayConsistentLocally(t *testing.T) {
	eng, _, _ := setupEngine(t)
	require.NoError(t, eng.Initialize(context.Background(), "user1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = eng.AddItem(context.Background(), product("p1", 10), 1)
		}()
	}
	wg.Wait()

	items := eng.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 20, items[0].Quantity)
	waitIdle(t, eng)
}
