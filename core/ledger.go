package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"remitlend/core/events"
	"remitlend/core/state"
	"remitlend/crypto"
	"remitlend/native/bank"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
	"remitlend/native/pool"
	"remitlend/native/verifier"
	"remitlend/observability/metrics"
	telemetry "remitlend/observability/otel"
	"remitlend/storage"
)

var errNilDatabase = errors.New("ledger: database required")

// ModuleAddresses are the accounts native modules act as towards each other.
type ModuleAddresses struct {
	Pool       crypto.Address
	Loans      crypto.Address
	Collateral crypto.Address
	Verifier   crypto.Address
}

// DefaultModuleAddresses derives the module accounts from their names.
func DefaultModuleAddresses() ModuleAddresses {
	return ModuleAddresses{
		Pool:       crypto.ModuleAddress("pool"),
		Loans:      crypto.ModuleAddress("loans"),
		Collateral: crypto.ModuleAddress("collateral"),
		Verifier:   crypto.ModuleAddress("verifier"),
	}
}

// Ledger is the sequential executor in front of every native module. Each
// call runs in its own staged transaction that is committed only when the
// call succeeds, so a failure anywhere in a cross-module chain leaves no
// trace. Events raised by a call reach the sink only after its commit.
type Ledger struct {
	mu      sync.RWMutex
	db      storage.Database
	clock   func() time.Time
	sink    events.Emitter
	pauses  common.PauseView
	asset   string
	modules ModuleAddresses
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
	tracer  trace.Tracer
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock. The clock is read once per call.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithEmitter sets the sink receiving committed events.
func WithEmitter(sink events.Emitter) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithPauses installs the module pause set.
func WithPauses(pauses common.PauseView) Option {
	return func(l *Ledger) { l.pauses = pauses }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics enables prometheus recording.
func WithMetrics(m *metrics.LendingMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New opens a ledger over db. A database written by an incompatible schema is
// refused.
func New(db storage.Database, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if err := state.EnsureStateVersion(db, false); err != nil {
		return nil, err
	}
	l := &Ledger{
		db:      db,
		clock:   time.Now,
		sink:    events.NoopEmitter{},
		modules: DefaultModuleAddresses(),
		logger:  slog.Default(),
		tracer:  telemetry.Tracer("core"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	tx := state.NewTx(db)
	defer tx.Discard()
	stored, err := state.NewManager(tx).GetPool()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		l.asset = stored.Asset
	}
	return l, nil
}

// Modules returns the module accounts.
func (l *Ledger) Modules() ModuleAddresses { return l.modules }

// Asset returns the pooled asset symbol, empty before bootstrap.
func (l *Ledger) Asset() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.asset
}

type session struct {
	manager    *state.Manager
	bank       *bank.Ledger
	pool       *pool.Engine
	collateral *collateral.Registry
	loans      *loans.Manager
	verifier   *verifier.Engine
	buffer     *events.Buffer
}

func (l *Ledger) newSession(tx *state.Tx, now time.Time) *session {
	manager := state.NewManager(tx)
	buffer := &events.Buffer{}
	ts := uint64(now.Unix())

	bk := bank.NewLedger(l.asset)
	bk.SetState(manager)
	bk.SetEmitter(buffer)

	pl := pool.NewEngine(l.modules.Pool)
	pl.SetState(manager)
	pl.SetBank(bk)
	pl.SetEmitter(buffer)
	pl.SetPauses(l.pauses)
	pl.SetTimestamp(ts)

	reg := collateral.NewRegistry()
	reg.SetState(manager)
	reg.SetEmitter(buffer)
	reg.SetPauses(l.pauses)
	reg.SetTimestamp(ts)

	lm := loans.NewManager(l.modules.Loans)
	ver := verifier.NewEngine(l.modules.Verifier)

	lm.SetState(manager)
	lm.SetPool(pl)
	lm.SetCollateral(reg)
	lm.SetBank(bk)
	lm.SetMonitor(ver)
	lm.SetDefaultHandler(defaultRecorder{logger: l.logger})
	lm.SetEmitter(buffer)
	lm.SetPauses(l.pauses)
	lm.SetTimestamp(ts)

	ver.SetState(manager)
	ver.SetRegistry(reg)
	ver.SetLoanManager(lm)
	ver.SetEmitter(buffer)
	ver.SetPauses(l.pauses)
	ver.SetTimestamp(ts)

	return &session{
		manager:    manager,
		bank:       bk,
		pool:       pl,
		collateral: reg,
		loans:      lm,
		verifier:   ver,
		buffer:     buffer,
	}
}

// execute runs a mutating call. The transaction is committed only when fn
// succeeds; otherwise staged writes and buffered events are dropped.
func (l *Ledger) execute(ctx context.Context, op string, fn func(*session) error) (err error) {
	ctx, span := l.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	started := time.Now()
	defer func() { l.observe(span, op, started, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := state.NewTx(l.db)
	s := l.newSession(tx, l.clock())
	if err := fn(s); err != nil {
		tx.Discard()
		return err
	}
	span.SetAttributes(attribute.Int("ledger.writes", tx.Dirty()))
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit %s: %w", op, err)
	}
	s.buffer.FlushTo(l.sink)
	l.publishPool()
	return nil
}

// view runs a read-only call. Nothing it stages is ever committed.
func (l *Ledger) view(ctx context.Context, fn func(*session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx := state.NewTx(l.db)
	defer tx.Discard()
	return fn(l.newSession(tx, l.clock()))
}

func (l *Ledger) observe(span trace.Span, op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "internal"
		if kind := common.Kind(err); kind != nil {
			outcome = kind.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		l.logger.Debug("ledger call failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	span.SetAttributes(attribute.String("ledger.outcome", outcome))
	l.metrics.ObserveOperation(op, outcome, time.Since(started))
}

func (l *Ledger) publishPool() {
	if l.metrics == nil {
		return
	}
	tx := state.NewTx(l.db)
	defer tx.Discard()
	stored, err := state.NewManager(tx).GetPool()
	if err != nil || stored == nil {
		return
	}
	util := uint32(0)
	if stored.TotalLiquidity.Sign() > 0 {
		u := new(big.Int).Mul(stored.TotalBorrowed, big.NewInt(10_000))
		u.Quo(u, stored.TotalLiquidity)
		if u.IsUint64() && u.Uint64() <= 1<<32-1 {
			util = uint32(u.Uint64())
		}
	}
	l.metrics.SetPool(stored.TotalLiquidity, stored.TotalBorrowed, stored.TotalInterestEarned, util)
}

// defaultRecorder logs defaults. Recovery beyond keeping the collateral
// locked is left to operators.
type defaultRecorder struct {
	logger *slog.Logger
}

func (d defaultRecorder) HandleDefault(loan *loans.Loan) error {
	if d.logger == nil || loan == nil {
		return nil
	}
	d.logger.Warn("loan defaulted",
		slog.Uint64("loanId", loan.ID),
		slog.String("borrower", loan.Borrower.String()),
		slog.Uint64("collateralId", loan.CollateralID),
		slog.String("outstanding", loan.Outstanding.String()),
	)
	return nil
}
