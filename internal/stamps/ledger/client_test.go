package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitproof/pkg/platform/circuit"
)

const (
	testContract = "0x00000000000000000000000000000000000000c0"
	testHolder   = "0x1111111111111111111111111111111111111111"
	testChainID  = 84532
)

// revertErr mimics the JSON-RPC error go-ethereum returns for a reverted call.
type revertErr struct{ data string }

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorCode() int         { return 3 }
func (e revertErr) ErrorData() interface{} { return e.data }

// fakeChain is an in-memory contract with the same claim semantics as the
// deployed one: the first claim per (holder, token) succeeds, later ones revert.
type fakeChain struct {
	mu       sync.Mutex
	abi      abi.ABI
	claimed  map[string]bool
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
	sent     []*types.Transaction
	head     uint64

	rpcErr        error
	skipEstimate  bool
	pendingPolls  int
	neverMine     bool
	blockNumCalls int
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(stampContractABI))
	require.NoError(t, err)
	return &fakeChain{
		abi:      parsed,
		claimed:  map[string]bool{},
		receipts: map[common.Hash]*types.Receipt{},
		polls:    map[common.Hash]int{},
		head:     100,
	}
}

func claimKey(user common.Address, token *big.Int) string {
	return user.Hex() + "/" + token.String()
}

func (f *fakeChain) decode(data []byte) (string, common.Address, *big.Int) {
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		panic(err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		panic(err)
	}
	return method.Name, args[0].(common.Address), args[1].(*big.Int)
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	name, user, token := f.decode(msg.Data)
	return f.abi.Methods[name].Outputs.Pack(f.claimed[claimKey(user, token)])
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rpcErr != nil {
		return 0, f.rpcErr
	}
	return uint64(len(f.sent)), nil
}

func (f *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rpcErr != nil {
		return 0, f.rpcErr
	}
	_, user, token := f.decode(msg.Data)
	if !f.skipEstimate && f.claimed[claimKey(user, token)] {
		selector := f.abi.Errors[errorAlreadyClaimed].ID
		return 0, revertErr{data: hexutil.Encode(selector[:4])}
	}
	return 60_000, nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.head), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	_, user, token := f.decode(tx.Data())

	status := types.ReceiptStatusSuccessful
	if f.claimed[claimKey(user, token)] {
		status = types.ReceiptStatusFailed
	}
	f.claimed[claimKey(user, token)] = true
	f.head++
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.head),
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.neverMine {
		return nil, ethereum.NotFound
	}
	f.polls[hash]++
	if f.polls[hash] <= f.pendingPolls {
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockNumCalls++
	f.head++
	return f.head, nil
}

func (f *fakeChain) markClaimed(holder string, token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed[claimKey(common.HexToAddress(holder), new(big.Int).SetUint64(token))] = true
}

func newTestClient(t *testing.T, backend Backend, confirmations uint64, opts ...Option) *EthClient {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	client, err := New(backend, Config{
		ContractAddress: testContract,
		SignerKey:       hexutil.Encode(crypto.FromECDSA(key)),
		ChainID:         testChainID,
		Confirmations:   confirmations,
	}, opts...)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	chain := newFakeChain(t)

	t.Run("rejects bad contract address", func(t *testing.T) {
		_, err := New(chain, Config{ContractAddress: "nope", SignerKey: strings.Repeat("1", 64), ChainID: 1})
		assert.ErrorContains(t, err, "invalid contract address")
	})

	t.Run("rejects bad signer key", func(t *testing.T) {
		_, err := New(chain, Config{ContractAddress: testContract, SignerKey: "0x1234", ChainID: 1})
		assert.ErrorContains(t, err, "parse signer key")
	})

	t.Run("requires chain id", func(t *testing.T) {
		_, err := New(chain, Config{ContractAddress: testContract, SignerKey: strings.Repeat("1", 64)})
		assert.ErrorContains(t, err, "chain id")
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("mints and returns the receipt", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.pendingPolls = 2
		client := newTestClient(t, chain, 1)

		receipt, err := client.Claim(ctx, testHolder, 7)
		require.NoError(t, err)
		require.Len(t, chain.sent, 1)

		tx := chain.sent[0]
		assert.Equal(t, tx.Hash().Hex(), receipt.TxHash)
		assert.Equal(t, uint64(101), receipt.BlockNumber)
		assert.Equal(t, common.HexToAddress(testContract), *tx.To())
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, uint64(72_000), tx.Gas())

		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
		require.NoError(t, err)
		assert.Equal(t, client.SignerAddress(), sender.Hex())

		claimed, err := client.HasClaimed(ctx, testHolder, 7)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("double claim reverts during estimation without broadcasting", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.markClaimed(testHolder, 7)
		client := newTestClient(t, chain, 1)

		_, err := client.Claim(ctx, testHolder, 7)
		require.Error(t, err)
		assert.True(t, IsAlreadyClaimed(err))
		assert.Empty(t, chain.sent)

		var ce *ChainError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindRevert, ce.Kind)
	})

	t.Run("mined revert is attributed via contract state", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.skipEstimate = true
		chain.markClaimed(testHolder, 9)
		client := newTestClient(t, chain, 1)

		_, err := client.Claim(ctx, testHolder, 9)
		require.Error(t, err)
		assert.True(t, IsAlreadyClaimed(err))

		var ce *ChainError
		require.ErrorAs(t, err, &ce)
		assert.NotEmpty(t, ce.TxHash)
	})

	t.Run("deadline after broadcast is pending with tx hash", func(t *testing.T) {
		chain := newFakeChain(t)
		chain.neverMine = true
		client := newTestClient(t, chain, 1)

		tctx, cancel := context.WithTimeout(ctx, 40*time.Millisecond)
		defer cancel()

		_, err := client.Claim(tctx, testHolder, 7)
		var ce *ChainError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindTimeout, ce.Kind)
		assert.True(t, ce.Pending())
		assert.Equal(t, chain.sent[0].Hash().Hex(), ce.TxHash)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("waits for confirmations", func(t *testing.T) {
		chain := newFakeChain(t)
		client := newTestClient(t, chain, 3)

		receipt, err := client.Claim(ctx, testHolder, 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(101), receipt.BlockNumber)
		assert.GreaterOrEqual(t, chain.blockNumCalls, 1)
	})

	t.Run("rejects non-address holders", func(t *testing.T) {
		chain := newFakeChain(t)
		client := newTestClient(t, chain, 1)

		_, err := client.Claim(ctx, "alice", 7)
		assert.ErrorIs(t, err, ErrInvalidHolder)
		_, err = client.HasClaimed(ctx, "1111111111111111111111111111111111111111", 7)
		assert.ErrorIs(t, err, ErrInvalidHolder)
		assert.Empty(t, chain.sent)
	})
}

func TestClaim_ConcurrentSubmissionsUseDistinctNonces(t *testing.T) {
	chain := newFakeChain(t)
	client := newTestClient(t, chain, 1)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder := fmt.Sprintf("0x%040x", i+1)
			_, err := client.Claim(context.Background(), holder, 1)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[uint64]bool{}
	for _, tx := range chain.sent {
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, n)
}

func TestClaim_BreakerOpensOnRPCFailures(t *testing.T) {
	chain := newFakeChain(t)
	chain.rpcErr = errors.New("connection refused")
	breaker := circuit.New("ledger", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	client := newTestClient(t, chain, 1, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := client.Claim(context.Background(), testHolder, 7)
		var ce *ChainError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindRPC, ce.Kind)
	}
	assert.True(t, breaker.IsOpen())

	_, err := client.Claim(context.Background(), testHolder, 7)
	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindUnavailable, ce.Kind)
}

func TestClaim_RevertDoesNotTripBreaker(t *testing.T) {
	chain := newFakeChain(t)
	chain.markClaimed(testHolder, 7)
	breaker := circuit.New("ledger", circuit.WithFailureThreshold(1))
	client := newTestClient(t, chain, 1, WithBreaker(breaker))

	_, err := client.Claim(context.Background(), testHolder, 7)
	require.True(t, IsAlreadyClaimed(err))
	assert.False(t, breaker.IsOpen())
}

func TestExplorerURL(t *testing.T) {
	assert.Equal(t, "https://basescan.org/tx/0xabc", ExplorerURL("https://basescan.org/", "0xabc"))
	assert.Empty(t, ExplorerURL("", "0xabc"))
	assert.Empty(t, ExplorerURL("https://basescan.org", ""))
}

func TestUnconfigured(t *testing.T) {
	var u Unconfigured
	assert.False(t, u.Configured())
	_, err := u.Claim(context.Background(), testHolder, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = u.HasClaimed(context.Background(), testHolder, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
