package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"visitproof/internal/stamps/models"
	"visitproof/pkg/platform/circuit"
)

// Backend is the subset of *ethclient.Client the client needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Config holds what EthClient needs beyond the backend.
type Config struct {
	ContractAddress string
	// SignerKey is the hex-encoded secp256k1 private key, with or without 0x.
	SignerKey     string
	ChainID       int64
	Confirmations uint64
}

// EthClient implements HasClaimed and Claim against an EVM JSON-RPC endpoint.
type EthClient struct {
	backend       Backend
	contract      common.Address
	abi           abi.ABI
	key           *ecdsa.PrivateKey
	from          common.Address
	chainID       *big.Int
	confirmations uint64
	pollInterval  time.Duration
	breaker       *circuit.Breaker
	logger        *slog.Logger

	// submitMu serializes nonce allocation through broadcast so concurrent
	// claims from the same signer never reuse a nonce.
	submitMu sync.Mutex
}

type Option func(*EthClient)

// WithPollInterval sets how often receipts and block heights are polled. Default 2s.
func WithPollInterval(d time.Duration) Option {
	return func(c *EthClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBreaker fails calls fast while the RPC endpoint is failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *EthClient) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *EthClient) {
		c.logger = logger
	}
}

// Dial connects to rpcURL and verifies the endpoint serves the configured chain.
func Dial(ctx context.Context, rpcURL string, cfg Config, opts ...Option) (*EthClient, *ethclient.Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, nil, fmt.Errorf("ledger rpc serves chain %s, expected %d", chainID, cfg.ChainID)
	}
	cfg.ChainID = chainID.Int64()

	client, err := New(eth, cfg, opts...)
	if err != nil {
		eth.Close()
		return nil, nil, err
	}
	return client, eth, nil
}

// New builds a client over an existing backend.
func New(backend Backend, cfg Config, opts ...Option) (*EthClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(stampContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if cfg.ChainID <= 0 {
		return nil, errors.New("chain id is required")
	}

	c := &EthClient{
		backend:       backend,
		contract:      common.HexToAddress(cfg.ContractAddress),
		abi:           parsed,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(cfg.ChainID),
		confirmations: cfg.Confirmations,
		pollInterval:  2 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *EthClient) Configured() bool { return true }

// SignerAddress is the account that pays for and submits claims.
func (c *EthClient) SignerAddress() string { return c.from.Hex() }

// ValidateHolder checks that holderID is an address the contract can mint to.
func (c *EthClient) ValidateHolder(holderID string) error {
	if !common.IsHexAddress(holderID) || !strings.HasPrefix(holderID, "0x") {
		return ErrInvalidHolder
	}
	return nil
}

// HasClaimed asks the contract whether holderID already owns tokenID.
func (c *EthClient) HasClaimed(ctx context.Context, holderID string, tokenID uint64) (bool, error) {
	if err := c.ValidateHolder(holderID); err != nil {
		return false, err
	}
	if !c.allow() {
		return false, &ChainError{Kind: KindUnavailable, Op: "has_claimed", Reason: "circuit open"}
	}

	data, err := c.abi.Pack(methodHasUserClaimed, common.HexToAddress(holderID), new(big.Int).SetUint64(tokenID))
	if err != nil {
		return false, fmt.Errorf("pack hasUserClaimed: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		c.recordFailure(ctx, err)
		return false, c.classify("has_claimed", "", err)
	}
	c.recordSuccess()

	values, err := c.abi.Unpack(methodHasUserClaimed, out)
	if err != nil || len(values) != 1 {
		return false, &ChainError{Kind: KindRPC, Op: "has_claimed", Reason: "unexpected return data", Err: err}
	}
	claimed, ok := values[0].(bool)
	if !ok {
		return false, &ChainError{Kind: KindRPC, Op: "has_claimed", Reason: "unexpected return type"}
	}
	return claimed, nil
}

// Claim mints tokenID to holderID and blocks until the transaction is mined
// with the configured confirmations or ctx is done. A ctx expiry after
// broadcast yields a pending ChainError carrying the tx hash.
func (c *EthClient) Claim(ctx context.Context, holderID string, tokenID uint64) (*models.LedgerReceipt, error) {
	if err := c.ValidateHolder(holderID); err != nil {
		return nil, err
	}
	if !c.allow() {
		return nil, &ChainError{Kind: KindUnavailable, Op: "claim", Reason: "circuit open"}
	}

	tx, err := c.submit(ctx, common.HexToAddress(holderID), tokenID)
	if err != nil {
		return nil, err
	}
	txHash := tx.Hash().Hex()
	c.logger.InfoContext(ctx, "ledger claim submitted",
		"tx_hash", txHash,
		"token_id", tokenID,
		"nonce", tx.Nonce(),
	)

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, c.classify("claim", txHash, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		ce := &ChainError{Kind: KindRevert, Op: "claim", Reason: "transaction reverted", TxHash: txHash}
		// A mined revert carries no reason; the contract state tells whether
		// the double-claim guard fired.
		if claimed, hcErr := c.HasClaimed(ctx, holderID, tokenID); hcErr == nil && claimed {
			ce.Reason = "already claimed"
			ce.AlreadyClaimed = true
		}
		return nil, ce
	}

	if err := c.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return nil, c.classify("claim", txHash, err)
	}

	return &models.LedgerReceipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *EthClient) submit(ctx context.Context, to common.Address, tokenID uint64) (*types.Transaction, error) {
	data, err := c.abi.Pack(methodClaim, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("pack claim: %w", err)
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, c.classify("claim", "", err)
	}

	// Gas estimation executes the call, so a double claim reverts here before
	// anything is broadcast.
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data})
	if err != nil {
		if isRevert(err) {
			c.recordSuccess()
			return nil, c.revertError(err)
		}
		c.recordFailure(ctx, err)
		return nil, c.classify("claim", "", err)
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, c.classify("claim", "", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, c.classify("claim", "", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &c.contract,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if isRevert(err) {
			c.recordSuccess()
			return nil, c.revertError(err)
		}
		c.recordFailure(ctx, err)
		return nil, c.classify("claim", "", err)
	}
	c.recordSuccess()
	return signed, nil
}

func (c *EthClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.WarnContext(ctx, "ledger receipt poll failed", "tx_hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthClient) waitConfirmations(ctx context.Context, minedAt uint64) error {
	if c.confirmations <= 1 {
		return nil
	}
	target := minedAt + c.confirmations - 1

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		head, err := c.backend.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthClient) allow() bool {
	return c.breaker == nil || c.breaker.Allow()
}

func (c *EthClient) recordFailure(ctx context.Context, err error) {
	if c.breaker == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "ledger circuit opened", "breaker", c.breaker.Name(), "error", err)
	}
}

func (c *EthClient) recordSuccess() {
	if c.breaker == nil {
		return
	}
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("ledger circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *EthClient) classify(op, txHash string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ChainError{Kind: KindTimeout, Op: op, TxHash: txHash, Err: err}
	}
	return &ChainError{Kind: KindRPC, Op: op, TxHash: txHash, Err: err}
}

func (c *EthClient) revertError(err error) *ChainError {
	ce := &ChainError{Kind: KindRevert, Op: "claim", Err: err}
	data := revertData(err)
	if selector := c.abi.Errors[errorAlreadyClaimed].ID; len(data) >= 4 && bytes.Equal(data[:4], selector[:4]) {
		ce.Reason = "already claimed"
		ce.AlreadyClaimed = true
		return ce
	}
	if reason, uErr := abi.UnpackRevert(data); uErr == nil {
		ce.Reason = reason
	} else {
		ce.Reason = strings.TrimSpace(strings.TrimPrefix(err.Error(), "execution reverted:"))
	}
	if looksAlreadyClaimed(ce.Reason) {
		ce.AlreadyClaimed = true
	}
	return ce
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func revertData(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	s, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil
	}
	data, decErr := hexutil.Decode(s)
	if decErr != nil {
		return nil
	}
	return data
}

func looksAlreadyClaimed(reason string) bool {
	r := strings.ToLower(strings.ReplaceAll(reason, " ", ""))
	return strings.Contains(r, "alreadyclaimed")
}
