// Package payment settles agent-to-agent charges.
package payment

import (
	"context"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// Charge is a request to move Amount from one wallet to another for a service.
type Charge struct {
	From    string
	To      string
	Amount  ledger.Amount
	Service string
	// Reference is an optional external settlement hash carried as txHash.
	Reference string
}

// Receipt confirms a settled charge.
type Receipt struct {
	TransactionID string
	Amount        ledger.Amount
	SettledAt     time.Time
}

// Settler moves value between agents. Implementations are opaque to callers.
type Settler interface {
	Settle(ctx context.Context, charge Charge) (Receipt, error)
}

// Recorder appends a raw transaction; satisfied by *ledger.Service and
// *marketclient.Client.
type Recorder interface {
	RecordTransaction(ctx context.Context, req ledger.TransactionRequest) (ledger.Transaction, error)
}

// LedgerSettler settles by recording the transfer on the marketplace ledger.
type LedgerSettler struct {
	recorder Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewLedgerSettler constructs a settler backed by recorder.
func NewLedgerSettler(recorder Recorder, logger *zap.Logger) *LedgerSettler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSettler{recorder: recorder, now: time.Now, logger: logger}
}

// Settle validates the charge and records it.
func (s *LedgerSettler) Settle(ctx context.Context, charge Charge) (Receipt, error) {
	if strings.TrimSpace(charge.From) == "" || strings.TrimSpace(charge.To) == "" {
		return Receipt{}, errorsmod.Wrap(ledger.ErrInvalidInput, "charge requires from and to")
	}
	if !charge.Amount.Valid() {
		return Receipt{}, errorsmod.Wrap(ledger.ErrInvalidInput, "charge requires amount")
	}
	settledAt := s.now().UTC()
	tx, err := s.recorder.RecordTransaction(ctx, ledger.TransactionRequest{
		From:      charge.From,
		To:        charge.To,
		Amount:    charge.Amount.String(),
		Service:   charge.Service,
		Timestamp: settledAt.UnixMilli(),
		TxHash:    charge.Reference,
	})
	if err != nil {
		return Receipt{}, errorsmod.Wrapf(err, "settle %s -> %s", charge.From, charge.To)
	}
	s.logger.Info("charge settled",
		zap.String("tx", tx.ID), zap.String("from", tx.From), zap.String("to", tx.To), zap.Stringer("amount", tx.Amount))
	return Receipt{TransactionID: tx.ID, Amount: tx.Amount, SettledAt: settledAt}, nil
}
