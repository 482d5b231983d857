package issuance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"visitproof/internal/geo"
	"visitproof/internal/platform/kafka/consumer"
	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/metrics"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/reconcile"
	"visitproof/internal/stamps/secrets"
	"visitproof/internal/stamps/store"
	dErrors "visitproof/pkg/domain-errors"
	"visitproof/pkg/platform/sentinel"
)

// contractLedger behaves like the deployed contract: the first claim per
// (holder, token) mints, later ones revert with the double-claim guard.
type contractLedger struct {
	mu      sync.Mutex
	claimed map[string]bool
	mints   int
	block   uint64
	// release, when set, holds every Claim until it is closed or ctx ends.
	release chan struct{}
	// entered is closed when the first Claim call arrives.
	entered     chan struct{}
	enteredOnce sync.Once
}

func newContractLedger() *contractLedger {
	return &contractLedger{claimed: map[string]bool{}, block: 1000, entered: make(chan struct{})}
}

func (l *contractLedger) Configured() bool { return true }

func (l *contractLedger) ValidateHolder(holderID string) error {
	if !models.IsEVMAddress(holderID) {
		return ledger.ErrInvalidHolder
	}
	return nil
}

func (l *contractLedger) HasClaimed(_ context.Context, holderID string, tokenID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimed[fmt.Sprintf("%s/%d", holderID, tokenID)], nil
}

func (l *contractLedger) Claim(ctx context.Context, holderID string, tokenID uint64) (*models.LedgerReceipt, error) {
	l.enteredOnce.Do(func() { close(l.entered) })
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, &ledger.ChainError{Kind: ledger.KindTimeout, Op: "claim", TxHash: "0xpending", Err: ctx.Err()}
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := fmt.Sprintf("%s/%d", holderID, tokenID)
	if l.claimed[key] {
		return nil, &ledger.ChainError{Kind: ledger.KindRevert, Op: "claim", Reason: "already claimed", AlreadyClaimed: true}
	}
	l.claimed[key] = true
	l.mints++
	l.block++
	return &models.LedgerReceipt{TxHash: fmt.Sprintf("0x%064x", l.block), BlockNumber: l.block}, nil
}

func (l *contractLedger) mintCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mints
}

// flakyStore fails the next N credential inserts.
type flakyStore struct {
	*store.InMemoryStore
	failInserts atomic.Int32
}

func (s *flakyStore) InsertCredential(ctx context.Context, c models.IssuedCredential) error {
	if s.failInserts.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return s.InMemoryStore.InsertCredential(ctx, c)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []reconcile.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e reconcile.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) snapshot() []reconcile.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]reconcile.Event(nil), n.events...)
}

var l1Digest = func() string {
	d, err := secrets.Hash(l1Secret)
	if err != nil {
		panic(err)
	}
	return d
}()

func seededStore(t *testing.T) *flakyStore {
	t.Helper()
	st := &flakyStore{InMemoryStore: store.NewInMemoryStore()}
	target := l1Target
	require.NoError(t, st.CreateDefinition(context.Background(), models.LocationDefinition{
		ID: "L1", Title: "Harbor", TokenID: 7, Active: true, SecretHash: l1Digest,
		Coordinates: &target, CreatedAt: time.Now(),
	}))
	return st
}

func rejectionReason(err error) RejectionReason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func TestCollect_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	o := New(st, ledger.Unconfigured{}, enabledVerifier(), WithLogger(discardLogger()))

	claim := models.PresenceClaim{
		LocationID: "L1",
		Secret:     "wrong",
		HolderID:   "0xHOLDER",
		Observed:   &geo.Coordinates{Latitude: 38.9051, Longitude: 141.5751},
	}
	_, err := o.Collect(ctx, claim)
	assert.Equal(t, ReasonInvalidCredential, rejectionReason(err))

	claim.Secret = l1Secret
	res, err := o.Collect(ctx, claim)
	require.NoError(t, err)
	assert.True(t, res.TestMode)
	assert.Nil(t, res.Credential.LedgerTxHash)
	assert.Less(t, res.Presence.DistanceMeters, 20.0)

	_, err = o.Collect(ctx, claim)
	assert.Equal(t, ReasonAlreadyCollected, rejectionReason(err))

	stored, err := st.FindExistingCredential(ctx, "0xHOLDER", "L1")
	require.NoError(t, err)
	assert.Equal(t, res.Credential.ID, stored.ID)
}

func TestCollect_ConcurrentIdenticalClaims(t *testing.T) {
	const n = 24

	cases := []struct {
		name    string
		ledger  func() Ledger
		allowed []RejectionReason
	}{
		{
			name:    "test mode",
			ledger:  func() Ledger { return ledger.Unconfigured{} },
			allowed: []RejectionReason{ReasonAlreadyCollected},
		},
		{
			name:    "ledger",
			ledger:  func() Ledger { return newContractLedger() },
			allowed: []RejectionReason{ReasonAlreadyCollected, ReasonAlreadyCollectedOnLedger},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := seededStore(t)
			l := tc.ledger()
			o := New(st, l, enabledVerifier(), WithLogger(discardLogger()))

			var successes atomic.Int32
			var g errgroup.Group
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				g.Go(func() error {
					<-start
					_, err := o.Collect(context.Background(), nearbyClaim())
					if err == nil {
						successes.Add(1)
						return nil
					}
					reason := rejectionReason(err)
					if !assert.Contains(t, tc.allowed, reason) {
						return err
					}
					return nil
				})
			}
			close(start)
			require.NoError(t, g.Wait())

			assert.Equal(t, int32(1), successes.Load())
			entries, err := st.ListCredentialsByHolder(context.Background(), wallet)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
			if cl, ok := l.(*contractLedger); ok {
				assert.Equal(t, 1, cl.mintCount())
			}
		})
	}
}

func TestCollect_PartialSuccessThenRetry(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	st.failInserts.Store(1)
	l := newContractLedger()
	notifier := &recordingNotifier{}
	o := New(st, l, enabledVerifier(), WithNotifier(notifier), WithLogger(discardLogger()))

	res, err := o.Collect(ctx, nearbyClaim())
	require.NoError(t, err)
	assert.True(t, res.ReconciliationPending)
	require.NotNil(t, res.Receipt)

	_, err = st.FindExistingCredential(ctx, wallet, "L1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = o.Collect(ctx, nearbyClaim())
	assert.Equal(t, ReasonAlreadyCollectedOnLedger, rejectionReason(err))
	assert.Equal(t, 1, l.mintCount())

	events := notifier.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, res.Receipt.TxHash, events[0].TxHash)

	// The backfill worker closes the gap from the event alone.
	worker := reconcile.NewWorker(st, l, nil, nil, discardLogger())
	value, err := events[0].Encode()
	require.NoError(t, err)
	require.NoError(t, worker.Handle(ctx, messageFor(value)))

	_, err = o.Collect(ctx, nearbyClaim())
	assert.Equal(t, ReasonAlreadyCollected, rejectionReason(err))
}

func TestCollect_CallerLeavesDuringClaim(t *testing.T) {
	st := seededStore(t)
	l := newContractLedger()
	l.release = make(chan struct{})
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	o := New(st, l, enabledVerifier(), WithMetrics(m), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Collect(ctx, nearbyClaim())
		errCh <- err
	}()

	<-l.entered
	cancel()

	err := <-errCh
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DetachedIssuances))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, o.Wait(waitCtx), context.DeadlineExceeded)
	waitCancel()

	close(l.release)
	require.NoError(t, o.Wait(context.Background()))

	stored, err := st.FindExistingCredential(context.Background(), wallet, "L1")
	require.NoError(t, err)
	assert.True(t, stored.OnLedger())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.DetachedIssuances))
	assert.Equal(t, 1, l.mintCount())
}

func TestCollect_ClaimTimeoutIsPending(t *testing.T) {
	st := seededStore(t)
	l := newContractLedger()
	l.release = make(chan struct{})
	defer close(l.release)
	notifier := &recordingNotifier{}
	o := New(st, l, enabledVerifier(),
		WithClaimTimeout(30*time.Millisecond),
		WithNotifier(notifier),
		WithLogger(discardLogger()),
	)

	_, err := o.Collect(context.Background(), nearbyClaim())
	var ce *ledger.ChainError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pending())

	events := notifier.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, reconcile.ReasonClaimPending, events[0].Reason)
	assert.Equal(t, "0xpending", events[0].TxHash)
}

func messageFor(value []byte) *consumer.Message {
	return &consumer.Message{Topic: reconcile.DefaultTopic, Value: value}
}
