package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"SynthLedger/internal/ledger"
)

const (
	alice = ledger.Account("alice")
	bob   = ledger.Account("bob")
	weth  = ledger.Asset("WETH")
	wbtc  = ledger.Asset("WBTC")
)

// ============================================================================
// Test: CollateralLedger
// ============================================================================

func TestCollateralLedger_InitialBalanceZero(t *testing.T) {
	l := ledger.NewCollateralLedger()

	if got := l.Balance(alice, weth); got.Sign() != 0 {
		t.Errorf("initial balance should be 0, got %s", got)
	}
}

func TestCollateralLedger_IncreaseDecrease(t *testing.T) {
	l := ledger.NewCollateralLedger()

	l.Increase(alice, weth, big.NewInt(1000))
	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("after increase: got %s, want 1000", got)
	}

	if err := l.Decrease(alice, weth, big.NewInt(400)); err != nil {
		t.Fatalf("decrease failed: %v", err)
	}
	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("after decrease: got %s, want 600", got)
	}
}

func TestCollateralLedger_DecreaseBeyondBalance(t *testing.T) {
	l := ledger.NewCollateralLedger()
	l.Increase(alice, weth, big.NewInt(100))

	err := l.Decrease(alice, weth, big.NewInt(101))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Failed decrease must leave the store untouched.
	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("balance changed by failed decrease: %s", got)
	}
}

func TestCollateralLedger_DecreaseUnseenAccount(t *testing.T) {
	l := ledger.NewCollateralLedger()

	err := l.Decrease(bob, weth, big.NewInt(1))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCollateralLedger_KeysAreIndependent(t *testing.T) {
	l := ledger.NewCollateralLedger()

	l.Increase(alice, weth, big.NewInt(10))
	l.Increase(alice, wbtc, big.NewInt(20))
	l.Increase(bob, weth, big.NewInt(30))

	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("alice/WETH: got %s, want 10", got)
	}
	if got := l.Balance(alice, wbtc); got.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("alice/WBTC: got %s, want 20", got)
	}
	if got := l.Balance(bob, weth); got.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("bob/WETH: got %s, want 30", got)
	}
}

func TestCollateralLedger_BalanceReturnsCopy(t *testing.T) {
	l := ledger.NewCollateralLedger()
	l.Increase(alice, weth, big.NewInt(50))

	b := l.Balance(alice, weth)
	b.Add(b, big.NewInt(1000))

	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("caller mutation leaked into ledger: %s", got)
	}
}

func TestCollateralLedger_IncreaseDoesNotAliasAmount(t *testing.T) {
	l := ledger.NewCollateralLedger()
	amount := big.NewInt(7)

	l.Increase(alice, weth, amount)
	amount.SetInt64(9999)

	if got := l.Balance(alice, weth); got.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("ledger aliased caller's amount: %s", got)
	}
}

// ============================================================================
// Test: DebtLedger
// ============================================================================

func TestDebtLedger_InitialBalanceZero(t *testing.T) {
	l := ledger.NewDebtLedger()

	if got := l.Balance(alice); got.Sign() != 0 {
		t.Errorf("initial debt should be 0, got %s", got)
	}
}

func TestDebtLedger_IncreaseDecrease(t *testing.T) {
	l := ledger.NewDebtLedger()

	l.Increase(alice, big.NewInt(500))
	if err := l.Decrease(alice, big.NewInt(500)); err != nil {
		t.Fatalf("decrease failed: %v", err)
	}
	if got := l.Balance(alice); got.Sign() != 0 {
		t.Errorf("debt should be 0 after full repayment, got %s", got)
	}
}

func TestDebtLedger_DecreaseBeyondDebt(t *testing.T) {
	l := ledger.NewDebtLedger()
	l.Increase(alice, big.NewInt(10))

	err := l.Decrease(alice, big.NewInt(11))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Balance(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("debt changed by failed decrease: %s", got)
	}
}

func TestDebtLedger_AccountsAreIndependent(t *testing.T) {
	l := ledger.NewDebtLedger()

	l.Increase(alice, big.NewInt(100))
	l.Increase(bob, big.NewInt(200))

	if got := l.Balance(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("alice: got %s, want 100", got)
	}
	if got := l.Balance(bob); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("bob: got %s, want 200", got)
	}
}
