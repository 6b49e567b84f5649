package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/db/pagination"
	"incentive-controlplane/pkg/fixedpoint"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be non-negative")
	ErrEmptyAccount      = errors.New("ledger: empty account identity")
	ErrChainBroken       = errors.New("ledger: hash chain broken")
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, node: p.Node}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, node: s.node}
}

// MintRequest creates tokens out of nothing onto one account.
type MintRequest struct {
	To          string
	Amount      *big.Int
	Description string
	Metadata    map[string]any
}

// TransferRequest moves tokens between two accounts.
type TransferRequest struct {
	From        string
	To          string
	Amount      *big.Int
	Description string
	Metadata    map[string]any
}

// Mint credits the target account and appends a chain entry. A zero amount
// is a no-op and writes nothing.
func (s *Service) Mint(ctx context.Context, req MintRequest, now time.Time) (*Entry, error) {
	if req.To == "" {
		return nil, ErrEmptyAccount
	}
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if req.Amount.Sign() == 0 {
		return nil, nil
	}

	var entry *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.adjust(ctx, tx, req.To, req.Amount, now); err != nil {
			return err
		}

		var err error
		entry, err = s.appendEntry(ctx, tx, &Entry{
			Type:        TypeMint,
			ToID:        req.To,
			Amount:      fixedpoint.NewBigInt(req.Amount),
			Description: req.Description,
			CreatedAt:   now,
		}, req.Metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Transfer debits From and credits To atomically. It fails with
// ErrInsufficientFunds when From cannot cover the amount; a zero amount is
// a no-op.
func (s *Service) Transfer(ctx context.Context, req TransferRequest, now time.Time) (*Entry, error) {
	if req.From == "" || req.To == "" {
		return nil, ErrEmptyAccount
	}
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if req.Amount.Sign() == 0 {
		return nil, nil
	}

	var entry *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.adjust(ctx, tx, req.From, new(big.Int).Neg(req.Amount), now); err != nil {
			return err
		}
		if err := s.adjust(ctx, tx, req.To, req.Amount, now); err != nil {
			return err
		}

		var err error
		entry, err = s.appendEntry(ctx, tx, &Entry{
			Type:        TypeTransfer,
			FromID:      req.From,
			ToID:        req.To,
			Amount:      fixedpoint.NewBigInt(req.Amount),
			Description: req.Description,
			CreatedAt:   now,
		}, req.Metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// BalanceOf returns the account balance, zero for accounts never seen.
func (s *Service) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	if account == "" {
		return nil, ErrEmptyAccount
	}

	var acc Account
	err := s.db.WithContext(ctx).Where("id = ?", account).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return acc.Balance.Int(), nil
}

// Entries lists chain entries touching the account, newest first. An empty
// account lists the whole chain. limit <= 0 means no limit.
func (s *Service) Entries(ctx context.Context, account string, limit int) ([]Entry, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if account != "" {
		q = q.Where("from_id = ? OR to_id = ?", account, account)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// EntriesPage lists chain entries touching the account as a cursor page,
// newest first. An empty account pages the whole chain.
func (s *Service) EntriesPage(ctx context.Context, account string, page pagination.Pagination) ([]Entry, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit + 1)
	if account != "" {
		q = q.Where("from_id = ? OR to_id = ?", account, account)
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	return pagination.BuildPage(entries, limit, func(e Entry) pagination.Cursor {
		return pagination.Cursor{
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        e.ID,
		}
	})
}

// VerifyChain re-hashes every entry in chain order and checks each link.
// It returns the number of verified entries, or ErrChainBroken at the
// first mismatch.
func (s *Service) VerifyChain(ctx context.Context) (int64, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return 0, err
	}

	prevHash := ""
	for i := range entries {
		e := &entries[i]
		if e.PreviousHash != prevHash {
			zap.L().Error("ledger chain link mismatch",
				zap.String("entry_id", e.ID),
				zap.String("want_previous", prevHash),
				zap.String("got_previous", e.PreviousHash),
			)
			return int64(i), ErrChainBroken
		}
		if got := e.GenerateHash(); got != e.Hash {
			zap.L().Error("ledger entry hash mismatch", zap.String("entry_id", e.ID))
			return int64(i), ErrChainBroken
		}
		prevHash = e.Hash
	}

	return int64(len(entries)), nil
}

func (s *Service) adjust(ctx context.Context, tx *gorm.DB, account string, delta *big.Int, now time.Time) error {
	var acc Account
	err := tx.WithContext(ctx).Where("id = ?", account).First(&acc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		acc = Account{ID: account, CreatedAt: now}
	case err != nil:
		return err
	}

	next := new(big.Int).Add(acc.Balance.Int(), delta)
	if next.Sign() < 0 {
		return ErrInsufficientFunds
	}

	acc.Balance = fixedpoint.NewBigInt(next)
	acc.UpdatedAt = now
	return tx.WithContext(ctx).Save(&acc).Error
}

func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, entry *Entry, meta map[string]any) (*Entry, error) {
	var last Entry
	err := tx.WithContext(ctx).
		Order("created_at DESC, id DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entry.ID = s.node.Generate().String()
	entry.PreviousHash = last.Hash
	entry.Hash = entry.GenerateHash()

	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		entry.Metadata = datatypes.JSON(raw)
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}
