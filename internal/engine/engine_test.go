package engine

import (
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/testutil"
	"SynthLedger/internal/token"
)

const (
	weth  = ledger.Asset("WETH")
	wbtc  = ledger.Asset("WBTC")
	alice = ledger.Account("alice")
	bob   = ledger.Account("bob")
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func feedPrice(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e8))
}

type fixture struct {
	engine   *Engine
	synth    *testutil.MockSyntheticToken
	wethTok  *testutil.MockCollateralToken
	wbtcTok  *testutil.MockCollateralToken
	wethFeed *oracle.StaticFeed
	wbtcFeed *oracle.StaticFeed
	events   chan event.Envelope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	wethFeed := oracle.NewStaticFeed(feedPrice(2000))
	wbtcFeed := oracle.NewStaticFeed(feedPrice(30000))

	reg, err := registry.New(
		[]ledger.Asset{weth, wbtc},
		[]oracle.PriceFeed{wethFeed, wbtcFeed},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	synth := testutil.NewMockSyntheticToken()
	wethTok := testutil.NewMockCollateralToken(DefaultCustody)
	wbtcTok := testutil.NewMockCollateralToken(DefaultCustody)
	wethTok.SetBalance(alice, wad(1000))
	wethTok.SetBalance(bob, wad(1000))
	wbtcTok.SetBalance(alice, wad(100))
	wbtcTok.SetBalance(bob, wad(100))

	events := make(chan event.Envelope, 64)

	eng, err := New(Config{
		Params:    DefaultParams(),
		Registry:  reg,
		Synthetic: synth,
		Collateral: map[ledger.Asset]token.CollateralToken{
			weth: wethTok,
			wbtc: wbtcTok,
		},
		Logger:      zerolog.Nop(),
		PersistChan: events,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	return &fixture{
		engine:   eng,
		synth:    synth,
		wethTok:  wethTok,
		wbtcTok:  wbtcTok,
		wethFeed: wethFeed,
		wbtcFeed: wbtcFeed,
		events:   events,
	}
}

func (f *fixture) drainEvents() []event.Envelope {
	var out []event.Envelope
	for {
		select {
		case env := <-f.events:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestNewRejectsMissingTokenHandle(t *testing.T) {
	feed := oracle.NewStaticFeed(feedPrice(2000))
	reg, err := registry.New([]ledger.Asset{weth}, []oracle.PriceFeed{feed})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	_, err = New(Config{
		Params:    DefaultParams(),
		Registry:  reg,
		Synthetic: testutil.NewMockSyntheticToken(),
		Logger:    zerolog.Nop(),
	})
	if !errors.Is(err, registry.ErrConfigMismatch) {
		t.Fatalf("got %v, want ErrConfigMismatch", err)
	}
}

func TestDepositCollateral(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.DepositCollateral(alice, weth, wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(10)) != 0 {
		t.Errorf("ledger balance = %s, want %s", got, wad(10))
	}
	if got := f.wethTok.BalanceOf(DefaultCustody); got.Cmp(wad(10)) != 0 {
		t.Errorf("custody token balance = %s, want %s", got, wad(10))
	}
	if got := f.wethTok.BalanceOf(alice); got.Cmp(wad(990)) != 0 {
		t.Errorf("alice token balance = %s, want %s", got, wad(990))
	}

	evs := f.drainEvents()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Type != event.TypeCollateralDeposited {
		t.Errorf("event type = %v, want CollateralDeposited", evs[0].Type)
	}
	if evs[0].Sequence != 1 {
		t.Errorf("sequence = %d, want 1", evs[0].Sequence)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []*big.Int{big.NewInt(0), big.NewInt(-1), nil} {
		if err := f.engine.DepositCollateral(alice, weth, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %v: got %v, want ErrInvalidAmount", amount, err)
		}
	}
	if len(f.drainEvents()) != 0 {
		t.Error("rejected deposit emitted events")
	}
}

func TestDepositRejectsUnknownAsset(t *testing.T) {
	f := newFixture(t)

	err := f.engine.DepositCollateral(alice, "DOGE", wad(1))
	if !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("got %v, want ErrAssetNotAllowed", err)
	}
}

func TestDepositRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.wethTok.FailTransferFrom = true

	err := f.engine.DepositCollateral(alice, weth, wad(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Sign() != 0 {
		t.Errorf("ledger balance after rollback = %s, want 0", got)
	}
	if len(f.drainEvents()) != 0 {
		t.Error("failed deposit emitted events")
	}
}

func TestMintDebt(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))

	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := f.engine.DebtOf(alice); got.Cmp(wad(100)) != 0 {
		t.Errorf("debt = %s, want %s", got, wad(100))
	}
	if got := f.synth.BalanceOf(alice); got.Cmp(wad(100)) != 0 {
		t.Errorf("synthetic balance = %s, want %s", got, wad(100))
	}
	// 10 WETH at $2000 backs $20000; 50% threshold over $100 debt.
	hf, err := f.engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if hf.Cmp(wad(100)) != 0 {
		t.Errorf("health factor = %s, want %s", hf, wad(100))
	}
}

func TestMintRejectsWhenHealthFactorWouldBreak(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	f.drainEvents()

	// $20000 collateral supports at most $10000 of debt.
	err := f.engine.MintDebt(alice, wad(10001))

	var broken *HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}
	if broken.User != alice {
		t.Errorf("broken user = %s, want alice", broken.User)
	}
	if got := f.engine.DebtOf(alice); got.Sign() != 0 {
		t.Errorf("debt after rollback = %s, want 0", got)
	}
	if got := f.synth.BalanceOf(alice); got.Sign() != 0 {
		t.Errorf("synthetic minted despite rejection: %s", got)
	}
	if len(f.drainEvents()) != 0 {
		t.Error("rejected mint emitted events")
	}
}

func TestMintAtExactThresholdSucceeds(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))

	if err := f.engine.MintDebt(alice, wad(10000)); err != nil {
		t.Fatalf("mint at exact limit: %v", err)
	}
	hf, err := f.engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if hf.Cmp(wad(1)) != 0 {
		t.Errorf("health factor = %s, want exactly %s", hf, wad(1))
	}
}

func TestMintRollsBackOnMintFailure(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	f.synth.FailMint = true

	err := f.engine.MintDebt(alice, wad(100))
	if !errors.Is(err, ErrMintFailed) {
		t.Fatalf("got %v, want ErrMintFailed", err)
	}
	if got := f.engine.DebtOf(alice); got.Sign() != 0 {
		t.Errorf("debt after rollback = %s, want 0", got)
	}
}

func TestRedeemCollateral(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	f.drainEvents()

	if err := f.engine.RedeemCollateral(alice, weth, wad(4), alice); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(6)) != 0 {
		t.Errorf("ledger balance = %s, want %s", got, wad(6))
	}
	if got := f.wethTok.BalanceOf(alice); got.Cmp(wad(994)) != 0 {
		t.Errorf("alice token balance = %s, want %s", got, wad(994))
	}

	evs := f.drainEvents()
	if len(evs) != 1 || evs[0].Type != event.TypeCollateralRedeemed {
		t.Fatalf("got %v, want one CollateralRedeemed", evs)
	}
}

func TestRedeemRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))

	err := f.engine.RedeemCollateral(alice, weth, wad(11), alice)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(10)) != 0 {
		t.Errorf("balance disturbed by rejected redeem: %s", got)
	}
}

func TestRedeemRevertsWhenItWouldBreakHealthFactor(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	if err := f.engine.MintDebt(alice, wad(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.drainEvents()

	err := f.engine.RedeemCollateral(alice, weth, wad(1), alice)
	var broken *HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}

	// Full restore: ledger balance and token custody both back.
	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(10)) != 0 {
		t.Errorf("ledger balance after revert = %s, want %s", got, wad(10))
	}
	if got := f.wethTok.BalanceOf(DefaultCustody); got.Cmp(wad(10)) != 0 {
		t.Errorf("custody after revert = %s, want %s", got, wad(10))
	}
	if len(f.drainEvents()) != 0 {
		t.Error("reverted redeem emitted events")
	}
}

func TestBurnDebt(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.drainEvents()

	if err := f.engine.BurnDebt(wad(40), alice, alice); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if got := f.engine.DebtOf(alice); got.Cmp(wad(60)) != 0 {
		t.Errorf("debt = %s, want %s", got, wad(60))
	}
	if got := f.synth.BalanceOf(alice); got.Cmp(wad(60)) != 0 {
		t.Errorf("synthetic balance = %s, want %s", got, wad(60))
	}
	if got := f.synth.TotalSupply(); got.Cmp(wad(60)) != 0 {
		t.Errorf("total supply = %s, want %s", got, wad(60))
	}
}

func TestBurnRejectsMoreThanOwed(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := f.engine.BurnDebt(wad(101), alice, alice)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := f.engine.DebtOf(alice); got.Cmp(wad(100)) != 0 {
		t.Errorf("debt disturbed by rejected burn: %s", got)
	}
}

func TestBurnRollsBackOnPullFailure(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.synth.FailTransferFrom = true

	err := f.engine.BurnDebt(wad(40), alice, alice)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if got := f.engine.DebtOf(alice); got.Cmp(wad(100)) != 0 {
		t.Errorf("debt after rollback = %s, want %s", got, wad(100))
	}
	if got := f.synth.TotalSupply(); got.Cmp(wad(100)) != 0 {
		t.Errorf("supply changed despite rollback: %s", got)
	}
}

func TestDepositAndMint(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.DepositAndMint(alice, weth, wad(10), wad(100)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(10)) != 0 {
		t.Errorf("collateral = %s, want %s", got, wad(10))
	}
	if got := f.engine.DebtOf(alice); got.Cmp(wad(100)) != 0 {
		t.Errorf("debt = %s, want %s", got, wad(100))
	}

	evs := f.drainEvents()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Type != event.TypeCollateralDeposited || evs[1].Type != event.TypeDebtMinted {
		t.Errorf("event order = %v, %v", evs[0].Type, evs[1].Type)
	}
	if evs[0].Sequence != 1 || evs[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", evs[0].Sequence, evs[1].Sequence)
	}
}

func TestDepositAndMintUnwindsDepositOnMintFailure(t *testing.T) {
	f := newFixture(t)

	// 1 WETH backs $1000 of debt; asking for more fails the mint leg.
	err := f.engine.DepositAndMint(alice, weth, wad(1), wad(2000))
	var broken *HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Sign() != 0 {
		t.Errorf("deposit survived failed composite: %s", got)
	}
	if got := f.wethTok.BalanceOf(alice); got.Cmp(wad(1000)) != 0 {
		t.Errorf("alice token balance after unwind = %s, want %s", got, wad(1000))
	}
	if len(f.drainEvents()) != 0 {
		t.Error("failed composite emitted events")
	}
}

func TestRedeemAndBurn(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	if err := f.engine.MintDebt(alice, wad(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.drainEvents()

	// At the exact threshold, redeeming anything without burning first
	// would break the position. Burn-then-redeem keeps it whole.
	if err := f.engine.RedeemAndBurn(alice, weth, wad(1), wad(1000)); err != nil {
		t.Fatalf("redeem and burn: %v", err)
	}

	if got := f.engine.CollateralBalance(alice, weth); got.Cmp(wad(9)) != 0 {
		t.Errorf("collateral = %s, want %s", got, wad(9))
	}
	if got := f.engine.DebtOf(alice); got.Cmp(wad(9000)) != 0 {
		t.Errorf("debt = %s, want %s", got, wad(9000))
	}

	evs := f.drainEvents()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Type != event.TypeDebtBurned || evs[1].Type != event.TypeCollateralRedeemed {
		t.Errorf("event order = %v, %v", evs[0].Type, evs[1].Type)
	}
}

func TestAccountInformation(t *testing.T) {
	f := newFixture(t)
	mustDeposit(t, f, alice, weth, wad(10))
	mustDeposit(t, f, alice, wbtc, wad(2))
	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	info, err := f.engine.AccountInformation(alice)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}

	// 10 WETH * $2000 + 2 WBTC * $30000 = $80000.
	if info.CollateralValueUsd.Cmp(wad(80000)) != 0 {
		t.Errorf("collateral value = %s, want %s", info.CollateralValueUsd, wad(80000))
	}
	if info.Debt.Cmp(wad(100)) != 0 {
		t.Errorf("debt = %s, want %s", info.Debt, wad(100))
	}
	if info.HealthFactor.Cmp(wad(400)) != 0 {
		t.Errorf("health factor = %s, want %s", info.HealthFactor, wad(400))
	}
}

func TestSequenceAdvancesAcrossOperations(t *testing.T) {
	f := newFixture(t)

	mustDeposit(t, f, alice, weth, wad(10))
	mustDeposit(t, f, bob, weth, wad(5))
	if err := f.engine.MintDebt(alice, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := f.engine.Sequence(); got != 3 {
		t.Errorf("sequence = %d, want 3", got)
	}
}

func mustDeposit(t *testing.T, f *fixture, user ledger.Account, asset ledger.Asset, amount *big.Int) {
	t.Helper()
	if err := f.engine.DepositCollateral(user, asset, amount); err != nil {
		t.Fatalf("deposit %s %s: %v", asset, amount, err)
	}
}
