// Package monitor implements the deposit reconciliation microservice. On every cycle it enumerates
// the wallet records in the store, reads each deposit address balance on chain and credits the
// difference between the observed balance and the ledger. Every credit is logged before the ledger
// moves, under an idempotency reference unique to the user, chain and cycle.
package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/chain"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/store"
)

var (
	cycleCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitor_cycles_total",
		Help: "Number of completed reconciliation cycles.",
	})
	depositCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_deposits_credited_total",
		Help: "Number of deposits credited to the ledger.",
	}, []string{"chain"})
	readErrCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_balance_read_errors_total",
		Help: "Number of failed chain balance reads.",
	}, []string{"chain"})
)

//nolint:gochecknoinits // metric registration
func init() {
	prometheus.MustRegister(cycleCount, depositCount, readErrCount)
}

// Monitor implements the reconciliation service.
type Monitor struct {
	dbtype      string
	db          store.DB
	bc          map[string]chain.Chain // map of blockchain clients
	mb          msg.MsgBroker
	interval    time.Duration // time between cycle starts
	callTimeout time.Duration // deadline for one chain balance read

	stop chan struct{}
	once sync.Once
}

// New instantiates a new monitor service.
func New(dbtype string, db store.DB, mb msg.MsgBroker, bc map[string]chain.Chain,
	interval, callTimeout time.Duration) *Monitor {
	return &Monitor{
		dbtype:      dbtype,
		db:          db,
		bc:          bc,
		mb:          mb,
		interval:    interval,
		callTimeout: callTimeout,
		stop:        make(chan struct{}),
	}
}

// Start runs the reconciliation loop until the context is cancelled or Stop is called. The first
// cycle runs immediately; afterwards one cycle starts per tick. At most one cycle is in flight at any
// time: a tick fires only after the previous cycle has returned.
func (m *Monitor) Start(ctx context.Context) {
	log.Printf("Reconciling deposits every %v over %d chains", m.interval, len(m.bc))

	m.runCycle(ctx, time.Now())

	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Reconciliation loop done: %v", ctx.Err())

			return
		case <-m.stop:
			log.Printf("Reconciliation loop stopped")

			return
		case start := <-t.C:
			m.runCycle(ctx, start)
		}
	}
}

// Stop ends the reconciliation loop after the in-flight cycle returns.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// runCycle reconciles every wallet record once. Errors on one wallet or one chain are logged and do
// not stop the rest of the cycle.
func (m *Monitor) runCycle(ctx context.Context, start time.Time) {
	wallets, err := m.db.ListWallets()
	if err != nil {
		log.Printf("Cannot list wallets, skipping cycle:%e", err)

		return
	}

	cycleRef := start.UTC().Format(time.RFC3339)

	for i := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.reconcileWallet(ctx, &wallets[i], cycleRef)
	}

	cycleCount.Inc()
}

// reconcileWallet reads the on-chain balance of every address the wallet holds a signing key for and
// credits positive differences against the ledger.
func (m *Monitor) reconcileWallet(ctx context.Context, w *store.Wallet, cycleRef string) {
	bals, err := m.db.GetBalances(w.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Printf("User %s has no ledger entry yet, skipping this cycle", w.UserID)
		} else {
			log.Printf("Cannot get balances for user %s:%e", w.UserID, err)
		}

		return
	}

	for net, c := range m.bc {
		address, ok := w.Addresses[net]
		if !ok || address == "" {
			continue
		}

		if _, ok = w.Keys[net]; !ok { // only addresses the service can spend from are custodial
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
		observed, err := c.Balance(cctx, address)

		cancel()

		if err != nil {
			// no information this cycle; a read error never means a zero balance
			readErrCount.WithLabelValues(net).Inc()
			log.Printf("[%s] Error reading balance of %s:%e", net, address, err)

			continue
		}

		delta := observed.Sub(bals[c.Symbol()])
		if !delta.IsPositive() {
			continue
		}

		m.credit(w.UserID, net, c.Symbol(), delta, cycleRef)
	}
}

// credit appends the deposit to the transaction log and then increments the ledger. The log write
// owns the idempotency reference: when another cycle already wrote it, the increment is skipped as
// well. An increment lost between the two steps is recovered by the next cycle, which recomputes the
// delta under a fresh reference.
func (m *Monitor) credit(userID, net, symbol string, delta decimal.Decimal, cycleRef string) {
	ref := userID + "|" + net + "|" + cycleRef

	tx := store.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      store.TxDeposit,
		Token:     symbol,
		Amount:    delta,
		Chain:     net,
		TxHash:    "delta:" + ref, // balance deltas carry no on-chain hash
		Ref:       ref,
		Status:    store.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}

	if _, err := m.db.AddTransaction(tx); err != nil {
		if errors.Is(err, store.ErrDuplicateTx) {
			log.Printf("[%s] Deposit %s already logged, skipping", net, ref)
		} else {
			log.Printf("[%s] Error logging deposit %s:%e", net, ref, err)
		}

		return
	}

	if err := m.db.IncrementBalance(userID, symbol, delta); err != nil {
		log.Printf("[%s] Error crediting user %s with %s %s:%e", net, userID, delta.String(), symbol, err)

		return
	}

	depositCount.WithLabelValues(net).Inc()
	log.Printf("[%s] Credited user %s with %s %s ref:%s", net, userID, delta.String(), symbol, ref)

	// best-effort event, the tx log is the source of truth
	dep := msg.Deposit{
		UserID: userID,
		Chain:  net,
		Token:  symbol,
		Amount: delta,
		TxHash: tx.TxHash,
		Ref:    ref,
		TS:     tx.Timestamp,
	}
	if err := m.mb.SendDeposits(net, []msg.Deposit{dep}); err != nil {
		log.Printf("[%s] Error sending deposit event %s:%e", net, ref, err)
	}
}

// ManageWalletRequests starts a go routine to receive wallet requests published by the wallet
// service. The cycle enumerates the store regardless; the request stream only tells the monitor a
// new wallet exists before its next enumeration.
func (m *Monitor) ManageWalletRequests() error {
	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	reqCh, errCh, err := m.mb.GetWalletReqs(mut)
	if err != nil {
		return err
	}

	go func() {
		log.Printf("Start listening to wallet request channel")

		for {
			select {
			case req, ok := (<-reqCh):
				if !ok {
					log.Printf("Stop listening to wallet request channel")

					return
				}

				if req.Act == msg.WATCH {
					log.Printf("User %s wallet created, will reconcile next cycle", req.UserID)
				} else {
					log.Printf("User %s wallet unwatched", req.UserID)
				}

				mut.Unlock()
			case e, ok := (<-errCh):
				if !ok {
					log.Printf("Stop listening to wallet request channel")

					return
				}

				log.Printf("Received error %+v", e)
			}
		}
	}()

	return nil
}
