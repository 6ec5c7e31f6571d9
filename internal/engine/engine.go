// Package engine implements the collateralized-debt core: the collateral
// and debt ledgers, health-factor enforcement, and liquidation. Operations
// are strictly serial; each one fully commits or leaves no trace.
package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/pricing"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/token"
)

// DefaultCustody is the engine's own account on the external tokens.
// Deposited collateral and repaid synthetic tokens are held here.
const DefaultCustody = ledger.Account("synthledger:custody")

// Config wires an Engine at construction. Registry and Synthetic are
// required; every registered asset must have a collateral token handle.
type Config struct {
	Params     Params
	Registry   *registry.Registry
	Synthetic  token.SyntheticToken
	Collateral map[ledger.Asset]token.CollateralToken
	Custody    ledger.Account
	Logger     zerolog.Logger
	Metrics    *observability.Metrics

	// PersistChan receives every committed event; sends block, giving the
	// operation log backpressure over the engine.
	PersistChan chan<- event.Envelope

	// PublishChan receives committed events for outbound fan-out; sends
	// never block, drops are counted.
	PublishChan chan<- event.Envelope
}

// Engine owns all mutable ledger state. One instance per deployment; the
// registry and constants are immutable after New.
type Engine struct {
	mu sync.Mutex

	params     Params
	reg        *registry.Registry
	conv       *pricing.Converter
	collateral *ledger.CollateralLedger
	debt       *ledger.DebtLedger

	synth            token.SyntheticToken
	collateralTokens map[ledger.Asset]token.CollateralToken
	custody          ledger.Account

	sequence int64
	logger   zerolog.Logger
	metrics  *observability.Metrics

	persistChan chan<- event.Envelope
	publishChan chan<- event.Envelope
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Params.validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required: %w", registry.ErrConfigMismatch)
	}
	if cfg.Synthetic == nil {
		return nil, fmt.Errorf("synthetic token is required: %w", registry.ErrConfigMismatch)
	}
	for _, asset := range cfg.Registry.Assets() {
		if cfg.Collateral[asset] == nil {
			return nil, fmt.Errorf("no token handle for %s: %w", asset, registry.ErrConfigMismatch)
		}
	}

	custody := cfg.Custody
	if custody == "" {
		custody = DefaultCustody
	}

	tokens := make(map[ledger.Asset]token.CollateralToken, len(cfg.Collateral))
	for asset, tok := range cfg.Collateral {
		tokens[asset] = tok
	}

	return &Engine{
		params:           cfg.Params.clone(),
		reg:              cfg.Registry,
		conv:             pricing.NewConverter(cfg.Registry),
		collateral:       ledger.NewCollateralLedger(),
		debt:             ledger.NewDebtLedger(),
		synth:            cfg.Synthetic,
		collateralTokens: tokens,
		custody:          custody,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		persistChan:      cfg.PersistChan,
		publishChan:      cfg.PublishChan,
	}, nil
}

// txn accumulates the undo steps, deferred burns, and pending events of one
// operation. Ledger effects always precede external token calls; when a
// later step fails, undo steps run in reverse order so the operation leaves
// no trace. Irreversible external calls (token burns) are deferred to
// commit time.
type txn struct {
	undo     []func()
	onCommit []func()
	events   []event.Event
}

func (t *txn) revertWith(fn func()) { t.undo = append(t.undo, fn) }
func (t *txn) commitWith(fn func()) { t.onCommit = append(t.onCommit, fn) }
func (t *txn) emit(e event.Event)   { t.events = append(t.events, e) }

func (t *txn) revert() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// run executes one operation under the engine mutex. This single lock is
// the ordering mechanism that keeps the execution model serial: no second
// operation observes the ledgers until the current one has committed or
// reverted.
func (e *Engine) run(op string, fn func(*txn) error) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &txn{}
	if err := fn(tx); err != nil {
		tx.revert()
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		}
		e.logger.Debug().Str("operation", op).Err(err).Msg("operation rejected")
		return err
	}

	e.commit(tx)

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (e *Engine) commit(tx *txn) {
	for _, fn := range tx.onCommit {
		fn()
	}

	now := time.Now()
	for _, ev := range tx.events {
		e.sequence++
		env := event.NewEnvelope(e.sequence, now, ev)

		if e.persistChan != nil {
			// Blocking send: the engine stalls rather than lose an event.
			e.persistChan <- env
		}
		if e.publishChan != nil {
			select {
			case e.publishChan <- env:
			default:
				if e.metrics != nil {
					e.metrics.PublishDrops.Inc()
				}
			}
		}
	}

	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}

// mustDecreaseCollateral and mustDecreaseDebt undo increases performed
// earlier in the same operation. Underflow here means the serial-execution
// invariant was violated.
func (e *Engine) mustDecreaseCollateral(user ledger.Account, asset ledger.Asset, amount *big.Int) {
	if err := e.collateral.Decrease(user, asset, amount); err != nil {
		panic(fmt.Sprintf("FATAL: collateral rollback underflow for %s/%s: %v", user, asset, err))
	}
}

func (e *Engine) mustDecreaseDebt(user ledger.Account, amount *big.Int) {
	if err := e.debt.Decrease(user, amount); err != nil {
		panic(fmt.Sprintf("FATAL: debt rollback underflow for %s: %v", user, err))
	}
}

// ============================================================================
// Primitives
// ============================================================================

// DepositCollateral pulls amount of asset from the user into custody and
// records it. Deposit-only never harms solvency, so no health check runs.
func (e *Engine) DepositCollateral(user ledger.Account, asset ledger.Asset, amount *big.Int) error {
	return e.run("deposit_collateral", func(tx *txn) error {
		return e.depositCollateral(tx, user, asset, amount)
	})
}

func (e *Engine) depositCollateral(tx *txn, user ledger.Account, asset ledger.Asset, amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return ErrInvalidAmount
	}
	tok, ok := e.collateralTokens[asset]
	if !ok {
		return fmt.Errorf("%s: %w", asset, ErrAssetNotAllowed)
	}
	amount = fixedpoint.Clone(amount)

	// Effects before interactions: the ledger reflects the deposit before
	// the token gets to run any third-party code inside TransferFrom.
	e.collateral.Increase(user, asset, amount)
	tx.revertWith(func() { e.mustDecreaseCollateral(user, asset, amount) })

	if !tok.TransferFrom(user, e.custody, amount) {
		return fmt.Errorf("pull %s from %s: %w", asset, user, ErrTransferFailed)
	}

	tx.emit(&event.CollateralDeposited{User: user, Asset: asset, Amount: amount})
	return nil
}

// MintDebt records new debt for the user, checks the resulting health
// factor with the new debt included, then mints the synthetic token.
func (e *Engine) MintDebt(user ledger.Account, amount *big.Int) error {
	return e.run("mint_debt", func(tx *txn) error {
		return e.mintDebt(tx, user, amount)
	})
}

func (e *Engine) mintDebt(tx *txn, user ledger.Account, amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return ErrInvalidAmount
	}
	amount = fixedpoint.Clone(amount)

	e.debt.Increase(user, amount)
	tx.revertWith(func() { e.mustDecreaseDebt(user, amount) })

	ratio, err := e.assertHealthy(user)
	if err != nil {
		return err
	}

	if !e.synth.Mint(user, amount) {
		return fmt.Errorf("mint for %s: %w", user, ErrMintFailed)
	}

	tx.emit(&event.DebtMinted{User: user, Amount: amount, HealthFactor: ratio})
	return nil
}

// RedeemCollateral releases amount of the user's collateral to recipient.
// The user's health factor is asserted after the transfer, so a
// self-harming redeem reverts entirely.
func (e *Engine) RedeemCollateral(user ledger.Account, asset ledger.Asset, amount *big.Int, recipient ledger.Account) error {
	return e.run("redeem_collateral", func(tx *txn) error {
		return e.redeemCollateral(tx, user, asset, amount, recipient)
	})
}

func (e *Engine) redeemCollateral(tx *txn, user ledger.Account, asset ledger.Asset, amount *big.Int, recipient ledger.Account) error {
	if !fixedpoint.IsPositive(amount) {
		return ErrInvalidAmount
	}
	tok, ok := e.collateralTokens[asset]
	if !ok {
		return fmt.Errorf("%s: %w", asset, ErrAssetNotAllowed)
	}
	amount = fixedpoint.Clone(amount)

	// The underflow check is the solvency-adjacent guard here.
	if err := e.collateral.Decrease(user, asset, amount); err != nil {
		return fmt.Errorf("redeem %s for %s: %w", asset, user, err)
	}
	tx.revertWith(func() { e.collateral.Increase(user, asset, amount) })

	if !tok.Transfer(recipient, amount) {
		return fmt.Errorf("send %s to %s: %w", asset, recipient, ErrTransferFailed)
	}
	// A later failure must claw the tokens back: custody cannot end up
	// short of what the restored ledger records.
	tx.revertWith(func() {
		if !tok.TransferFrom(recipient, e.custody, amount) {
			panic(fmt.Sprintf("FATAL: could not reclaim %s from %s during rollback", asset, recipient))
		}
	})

	if _, err := e.assertHealthy(user); err != nil {
		return err
	}

	tx.emit(&event.CollateralRedeemed{User: user, Asset: asset, Amount: amount, Recipient: recipient})
	return nil
}

// BurnDebt retires amount of debtOwner's debt, pulling the synthetic tokens
// from payer. Separating the two is what lets a liquidator pay off someone
// else's debt. No health check: burning only improves the owner's solvency.
func (e *Engine) BurnDebt(amount *big.Int, debtOwner, payer ledger.Account) error {
	return e.run("burn_debt", func(tx *txn) error {
		return e.burnDebt(tx, amount, debtOwner, payer)
	})
}

func (e *Engine) burnDebt(tx *txn, amount *big.Int, debtOwner, payer ledger.Account) error {
	if !fixedpoint.IsPositive(amount) {
		return ErrInvalidAmount
	}
	amount = fixedpoint.Clone(amount)

	if err := e.debt.Decrease(debtOwner, amount); err != nil {
		return fmt.Errorf("burn for %s: %w", debtOwner, err)
	}
	tx.revertWith(func() { e.debt.Increase(debtOwner, amount) })

	if !e.synth.TransferFrom(payer, e.custody, amount) {
		return fmt.Errorf("pull synthetic from %s: %w", payer, ErrTransferFailed)
	}
	tx.revertWith(func() {
		if !e.synth.TransferFrom(e.custody, payer, amount) {
			panic(fmt.Sprintf("FATAL: could not return synthetic to %s during rollback", payer))
		}
	})

	// The burn destroys custody-held tokens and cannot be undone, so it
	// runs only once the whole operation is known to commit.
	tx.commitWith(func() { e.synth.Burn(amount) })

	tx.emit(&event.DebtBurned{DebtOwner: debtOwner, Payer: payer, Amount: amount})
	return nil
}

// ============================================================================
// Composites
// ============================================================================

// DepositAndMint deposits collateral and mints debt in one atomic
// operation; a failed mint also unwinds the deposit.
func (e *Engine) DepositAndMint(user ledger.Account, asset ledger.Asset, collateralAmount, debtAmount *big.Int) error {
	return e.run("deposit_and_mint", func(tx *txn) error {
		if err := e.depositCollateral(tx, user, asset, collateralAmount); err != nil {
			return err
		}
		return e.mintDebt(tx, user, debtAmount)
	})
}

// RedeemAndBurn repays debt and withdraws collateral in one atomic
// operation. The burn runs first so the redeem's closing health check sees
// the reduced debt.
func (e *Engine) RedeemAndBurn(user ledger.Account, asset ledger.Asset, collateralAmount, debtAmount *big.Int) error {
	return e.run("redeem_and_burn", func(tx *txn) error {
		if err := e.burnDebt(tx, debtAmount, user, user); err != nil {
			return err
		}
		return e.redeemCollateral(tx, user, asset, collateralAmount, user)
	})
}

// ============================================================================
// Read-only queries
// ============================================================================

// AccountInfo is a consistent snapshot of one user's position.
type AccountInfo struct {
	Debt               *big.Int
	CollateralValueUsd *big.Int
	HealthFactor       *big.Int
}

// CollateralBalance returns the user's recorded balance for one asset.
func (e *Engine) CollateralBalance(user ledger.Account, asset ledger.Asset) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collateral.Balance(user, asset)
}

// DebtOf returns the user's recorded debt.
func (e *Engine) DebtOf(user ledger.Account) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debt.Balance(user)
}

// AccountCollateralValue returns the USD value of all the user's
// collateral at current prices.
func (e *Engine) AccountCollateralValue(user ledger.Account) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.AccountCollateralValue(e.collateral, user)
}

// AccountInformation returns debt, collateral value, and health factor in
// one consistent read.
func (e *Engine) AccountInformation(user ledger.Account) (AccountInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateralUsd, err := e.conv.AccountCollateralValue(e.collateral, user)
	if err != nil {
		return AccountInfo{}, err
	}
	debt := e.debt.Balance(user)

	return AccountInfo{
		Debt:               debt,
		CollateralValueUsd: collateralUsd,
		HealthFactor:       healthFactorFor(e.params, debt, collateralUsd),
	}, nil
}

// Assets returns the registered collateral assets in registration order.
func (e *Engine) Assets() []ledger.Asset {
	return e.reg.Assets()
}

// Params returns a copy of the engine's constants.
func (e *Engine) Params() Params {
	return e.params.clone()
}

// Sequence returns the last committed event sequence.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}
