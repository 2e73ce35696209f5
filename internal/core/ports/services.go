package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// BalanceCache is the read-through cache for wallet balances. Every
// Invalidate bumps the wallet's generation; Set only stores a balance read
// under the generation Get reported, so a read that raced a write is dropped.
type BalanceCache interface {
	Get(ctx context.Context, walletID uuid.UUID) (*domain.WalletBalance, int64, error) // nil balance on miss
	Set(ctx context.Context, balance *domain.WalletBalance, generation int64) error
	Invalidate(ctx context.Context, walletID uuid.UUID) error
}

// EventPublisher emits ledger events to downstream consumers.
type EventPublisher interface {
	PublishMovementApplied(ctx context.Context, event MovementAppliedEvent) error
}

// MovementAppliedEvent is published after a netting pass commits.
type MovementAppliedEvent struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Residual      decimal.Decimal `json:"residual"`
	CreatedIDs    []uuid.UUID     `json:"created_ids"`
	SettledIDs    []uuid.UUID     `json:"settled_ids"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// --- Service Ports (Business Logic) ---

// NettingService applies signed movements against outstanding attributed
// allocations before recording the remainder.
type NettingService interface {
	ApplyMovement(ctx context.Context, req MovementRequest) (*MovementResult, error)
	PreviewOffsets(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (domain.AttributeGroups, error)
}

// MovementRequest holds validated input for one netting pass.
type MovementRequest struct {
	WalletID      uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	ResidualTag   *domain.AttributeKey // nil = residual goes to the ordinary key
	Overrides     []GroupOverride
}

// GroupOverride fixes the magnitude offset against one attribute group.
type GroupOverride struct {
	Key    domain.AttributeKey
	Amount decimal.Decimal
}

// MovementResult is what one netting pass produced.
type MovementResult struct {
	WalletID      uuid.UUID                `json:"wallet_id"`
	TransactionID uuid.UUID                `json:"transaction_id"`
	Amount        decimal.Decimal          `json:"amount"`
	Created       []domain.MovementRecord  `json:"created"`
	Settled       []uuid.UUID              `json:"settled"`
	Snapshots     []domain.BalanceSnapshot `json:"snapshots"`
	Residual      decimal.Decimal          `json:"residual"`
}

// ReconcilerService keeps balance snapshots in step with the movement log.
type ReconcilerService interface {
	Apply(ctx context.Context, tx Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID uuid.UUID) (*domain.BalanceSnapshot, error)
	Rebuild(ctx context.Context, walletID uuid.UUID) (*domain.ReconcileReport, error)
	Verify(ctx context.Context, walletID uuid.UUID) (*domain.ReconcileReport, error)
}

// BalanceService serves balance and audit reads.
type BalanceService interface {
	GetWalletBalance(ctx context.Context, walletID uuid.UUID) (*domain.WalletBalance, error)
	ListWalletBalances(ctx context.Context) ([]domain.WalletBalance, error)
	ListMovements(ctx context.Context, params MovementListParams) ([]domain.MovementRecord, int64, error)
}

// MasterDataService manages wallets and transaction headers.
type MasterDataService interface {
	CreateWallet(ctx context.Context, req CreateWalletRequest) (*domain.Wallet, error)
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error)
}

// CreateWalletRequest holds input for wallet creation.
type CreateWalletRequest struct {
	Name         string
	CurrencyCode string
	DisplayUnit  string
}

// CreateTransactionRequest holds input for a transaction header.
type CreateTransactionRequest struct {
	Name         string
	TransactedAt *domain.DateSerial // nil = now
}
