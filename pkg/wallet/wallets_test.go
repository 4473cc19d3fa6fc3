package wallet

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWalletsSetAndBalance(t *testing.T) {
	w := NewWallets()
	w.Set(types.PlatformKalshi, CurrencyUSD, d("100.50"))

	got, ok := w.Balance(types.PlatformKalshi, CurrencyUSD)
	if !ok || !got.Equal(d("100.50")) {
		t.Fatalf("balance: %s, %v", got, ok)
	}
	if _, ok := w.Balance(types.PlatformPolymarket, CurrencyUSDCE); ok {
		t.Fatal("unknown balance reported present")
	}
}

func TestWalletsDebitFloorsAtZero(t *testing.T) {
	w := NewWallets()
	w.Set(types.PlatformKalshi, CurrencyUSD, d("10"))

	w.Debit(types.PlatformKalshi, CurrencyUSD, d("4.25"))
	got, _ := w.Balance(types.PlatformKalshi, CurrencyUSD)
	if !got.Equal(d("5.75")) {
		t.Fatalf("after debit: %s", got)
	}

	w.Debit(types.PlatformKalshi, CurrencyUSD, d("100"))
	got, _ = w.Balance(types.PlatformKalshi, CurrencyUSD)
	if !got.IsZero() {
		t.Fatalf("overdraw must floor at zero, got %s", got)
	}

	// Unknown balances are untouched.
	w.Debit(types.PlatformPolymarket, CurrencyUSDCE, d("1"))
	if _, ok := w.Balance(types.PlatformPolymarket, CurrencyUSDCE); ok {
		t.Fatal("debit created a balance")
	}
}

func TestWalletsSnapshotIsDeepCopy(t *testing.T) {
	w := NewWallets()
	w.Set(types.PlatformKalshi, CurrencyUSD, d("100"))

	snap := w.Snapshot()
	w.Debit(types.PlatformKalshi, CurrencyUSD, d("40"))

	got, _ := snap.Balance(types.PlatformKalshi, CurrencyUSD)
	if !got.Equal(d("100")) {
		t.Fatalf("snapshot mutated: %s", got)
	}
	live, _ := w.Balance(types.PlatformKalshi, CurrencyUSD)
	if !live.Equal(d("60")) {
		t.Fatalf("live balance: %s", live)
	}
}
