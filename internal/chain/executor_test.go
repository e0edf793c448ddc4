package chain_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/shopspring/decimal"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 6, "1000000"},
		{"1.68", 6, "1680000"},
		{"0.98", 8, "98000000"},
		{"0", 6, "0"},
		// Precision beyond the token's decimals truncates.
		{"0.1234567", 6, "123456"},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		if got := chain.ToBaseUnits(amount, tc.decimals); got.String() != tc.want {
			t.Errorf("ToBaseUnits(%s, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestFromBaseUnits_RoundTrip(t *testing.T) {
	units := big.NewInt(97902000)
	got := chain.FromBaseUnits(units, 8)
	if !got.Equal(decimal.RequireFromString("0.97902")) {
		t.Errorf("FromBaseUnits = %s, want 0.97902", got)
	}
	if back := chain.ToBaseUnits(got, 8); back.Cmp(units) != 0 {
		t.Errorf("round trip = %s, want %s", back, units)
	}
}

func TestTransferCalldata(t *testing.T) {
	to := common.HexToAddress("0x5555555555555555555555555555555555555555")
	data := chain.TransferCalldata(to, big.NewInt(1680000))

	// 4-byte selector + two 32-byte words.
	if len(data) != 68 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	// transfer(address,uint256) selector.
	if hex.EncodeToString(data[:4]) != "a9059cbb" {
		t.Errorf("selector = %x, want a9059cbb", data[:4])
	}
	if got := common.BytesToAddress(data[4:36]); got != to {
		t.Errorf("recipient = %s, want %s", got.Hex(), to.Hex())
	}
	if got := new(big.Int).SetBytes(data[36:68]); got.Int64() != 1680000 {
		t.Errorf("amount = %s, want 1680000", got)
	}
}

func TestCallDigest(t *testing.T) {
	chainID := big.NewInt(3073)
	target := common.HexToAddress("0x6666666666666666666666666666666666666666")
	data := []byte{0x12, 0x34}

	d1 := chain.CallDigest(chainID, target, data)
	if len(d1) != 32 {
		t.Fatalf("digest length = %d, want 32", len(d1))
	}
	// Deterministic for identical inputs.
	if d2 := chain.CallDigest(chainID, target, data); hex.EncodeToString(d1) != hex.EncodeToString(d2) {
		t.Error("digest must be deterministic")
	}
	// Any input change must change the digest.
	if d3 := chain.CallDigest(big.NewInt(1), target, data); hex.EncodeToString(d1) == hex.EncodeToString(d3) {
		t.Error("digest must bind the chain id")
	}
	if d4 := chain.CallDigest(chainID, target, []byte{0x12, 0x35}); hex.EncodeToString(d1) == hex.EncodeToString(d4) {
		t.Error("digest must bind the calldata")
	}
}
