// Package chain wraps the on-chain collaborators of the buyback engine: the
// backend-controlled executor wallet, the DEX-aggregator quote API, and the
// optional gas-sponsorship relay.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/evetabi/buyback/internal/config"
	"github.com/shopspring/decimal"
)

// ERC-20 function selectors.
var (
	selBalanceOf = common.Hex2Bytes("70a08231") // balanceOf(address)
	selTransfer  = common.Hex2Bytes("a9059cbb") // transfer(address,uint256)
)

// Executor owns the backend-controlled signing key and the RPC client. It is
// the only component that signs or submits transactions; one instance is
// shared by all sessions, so trade submission is serialized by the caller to
// keep nonce use conflict-free.
type Executor struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	cfg     *config.ChainConfig
}

// NewExecutor dials the RPC endpoint and loads the signing key. Returns
// (nil, nil) when no key is configured — callers must treat a nil Executor
// as "service unavailable", never attempt trades silently.
func NewExecutor(cfg *config.ChainConfig) (*Executor, error) {
	if cfg.ExecutorPrivateKey == "" {
		return nil, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.ExecutorPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain.NewExecutor: parse key: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain.NewExecutor: dial %s: %w", cfg.RPCURL, err)
	}

	return &Executor{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		cfg:     cfg,
	}, nil
}

// Address returns the executor wallet's address.
func (e *Executor) Address() common.Address { return e.address }

// NativeBalance returns the executor's gas-token balance in wei.
func (e *Executor) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := e.client.BalanceAt(ctx, e.address, nil)
	if err != nil {
		return nil, fmt.Errorf("chain.NativeBalance: %w", err)
	}
	return bal, nil
}

// TokenBalance returns the executor's ERC-20 balance of token, converted to
// a decimal using the given token decimals.
func (e *Executor) TokenBalance(ctx context.Context, token common.Address, decimals int) (decimal.Decimal, error) {
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(e.address.Bytes(), 32)...)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain.TokenBalance: call: %w", err)
	}
	if len(out) < 32 {
		return decimal.Zero, fmt.Errorf("chain.TokenBalance: short return data (%d bytes)", len(out))
	}
	raw := new(big.Int).SetBytes(out[:32])
	return FromBaseUnits(raw, decimals), nil
}

// SendCall signs and submits a transaction calling `to` with the given
// calldata and value, self-paying gas. Returns the transaction hash; the
// caller decides whether and how long to wait for inclusion.
func (e *Executor) SendCall(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return "", fmt.Errorf("chain.SendCall: nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain.SendCall: gas price: %w", err)
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if gasLimit == 0 {
		gasLimit = e.cfg.GasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return "", fmt.Errorf("chain.SendCall: sign: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain.SendCall: send: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// TransferCalldata encodes an ERC-20 transfer(to, amount) call.
func TransferCalldata(to common.Address, amount *big.Int) []byte {
	data := append(append([]byte{}, selTransfer...), common.LeftPadBytes(to.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

// TransferToken submits an ERC-20 transfer of amount (base units) to the
// recipient and returns the transaction hash.
func (e *Executor) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (string, error) {
	// Plain transfers need far less gas than swaps.
	return e.SendCall(ctx, token, nil, TransferCalldata(to, amount), 90000)
}

// WaitMined polls for the transaction receipt until it lands, reverts, or
// the configured confirmation budget runs out. A reverted execution is an
// error result, not a panic — the trade executor records it.
func (e *Executor) WaitMined(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	deadline := time.Now().Add(e.cfg.ConfirmTimeout)

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("chain.WaitMined: tx %s reverted", txHash)
			}
			return nil
		}
		if err != ethereum.NotFound {
			return fmt.Errorf("chain.WaitMined: receipt %s: %w", txHash, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chain.WaitMined: tx %s not mined within %s", txHash, e.cfg.ConfirmTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain.WaitMined: %w", ctx.Err())
		case <-time.After(e.cfg.ConfirmPollEvery):
		}
	}
}

// SignDigest produces the executor's secp256k1 signature over a 32-byte
// keccak digest. Used to authorize sponsored calls through the relay.
func (e *Executor) SignDigest(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, e.key)
	if err != nil {
		return nil, fmt.Errorf("chain.SignDigest: %w", err)
	}
	return sig, nil
}

// CallDigest is the message the executor signs to authorize a sponsored call:
// keccak256(chainID ‖ target ‖ calldata).
func CallDigest(chainID *big.Int, target common.Address, data []byte) []byte {
	return crypto.Keccak256(chainID.Bytes(), target.Bytes(), data)
}

// ChainID returns the EIP-155 chain id the executor signs for.
func (e *Executor) ChainID() *big.Int { return e.chainID }

// ──────────────────────────────────────────────────────────────────────────────
// Unit conversion helpers
// ──────────────────────────────────────────────────────────────────────────────

// ToBaseUnits converts a human-readable decimal amount to token base units,
// truncating any precision beyond the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// FromBaseUnits converts token base units back to a decimal amount.
func FromBaseUnits(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
