// Package ledger talks to the on-chain stamp contract. Claims are signed
// server-side and block until the transaction is mined and confirmed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"visitproof/internal/stamps/models"
)

var (
	// ErrNotConfigured is returned by Unconfigured for every ledger call.
	ErrNotConfigured = errors.New("ledger not configured")
	// ErrInvalidHolder means the holder id is not an address the contract can mint to.
	ErrInvalidHolder = errors.New("holder is not a ledger address")
)

// ErrorKind classifies a ChainError.
type ErrorKind string

const (
	// KindRevert means the contract rejected the call.
	KindRevert ErrorKind = "revert"
	// KindTimeout means the caller's deadline passed. When TxHash is set the
	// transaction was broadcast and may still be mined.
	KindTimeout ErrorKind = "timeout"
	// KindRPC means the endpoint failed or returned something unusable.
	KindRPC ErrorKind = "rpc"
	// KindUnavailable means the circuit breaker is refusing calls.
	KindUnavailable ErrorKind = "unavailable"
)

// ChainError describes a failed ledger operation.
type ChainError struct {
	Kind   ErrorKind
	Op     string
	Reason string
	TxHash string
	// AlreadyClaimed is set when the contract's double-claim guard fired.
	AlreadyClaimed bool
	Err            error
}

func (e *ChainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ledger %s: %s", e.Op, e.Kind)
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.TxHash != "" {
		b.WriteString(" (tx " + e.TxHash + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ChainError) Unwrap() error { return e.Err }

// Pending reports whether the claim was broadcast but its outcome is unknown.
func (e *ChainError) Pending() bool {
	return e.Kind == KindTimeout && e.TxHash != ""
}

// IsAlreadyClaimed reports whether err is a ChainError from the contract's double-claim guard.
func IsAlreadyClaimed(err error) bool {
	var ce *ChainError
	return errors.As(err, &ce) && ce.AlreadyClaimed
}

// Unconfigured is the ledger used when no RPC endpoint or signing key is provisioned.
type Unconfigured struct{}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) ValidateHolder(string) error { return nil }

func (Unconfigured) HasClaimed(context.Context, string, uint64) (bool, error) {
	return false, ErrNotConfigured
}

func (Unconfigured) Claim(context.Context, string, uint64) (*models.LedgerReceipt, error) {
	return nil, ErrNotConfigured
}

// ExplorerURL links a transaction on a block explorer: <base>/tx/<hash>.
func ExplorerURL(base, txHash string) string {
	if base == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/tx/" + txHash
}
