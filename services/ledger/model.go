package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"incentive-controlplane/pkg/fixedpoint"
)

// Entry types.
const (
	TypeMint     = "MINT"
	TypeTransfer = "TRANSFER"
)

// Account holds the current token balance for one identity. System
// accounts (escrow, treasury) live in the same table as actor accounts.
type Account struct {
	ID        string            `gorm:"column:id;primaryKey"`
	Balance   fixedpoint.BigInt `gorm:"column:balance;not null"`
	CreatedAt time.Time         `gorm:"column:created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (Account) TableName() string { return "ledger_accounts" }

// Entry is one value movement. Entries form a single hash chain: each one
// carries the hash of its predecessor, so any retroactive edit breaks
// verification from that point on.
type Entry struct {
	ID           string            `gorm:"column:id;primaryKey"`
	Type         string            `gorm:"column:type;not null"`
	FromID       string            `gorm:"column:from_id;index"` // empty for mints
	ToID         string            `gorm:"column:to_id;index;not null"`
	Amount       fixedpoint.BigInt `gorm:"column:amount;not null"`
	Description  string            `gorm:"column:description"`
	PreviousHash string            `gorm:"column:previous_hash"`
	Hash         string            `gorm:"column:hash;not null"`
	Metadata     datatypes.JSON    `gorm:"column:metadata"`
	CreatedAt    time.Time         `gorm:"column:created_at;index"`
}

func (Entry) TableName() string { return "ledger_entries" }

func (e *Entry) hashFields() map[string]string {
	return map[string]string{
		"id":            e.ID,
		"type":          e.Type,
		"from_id":       e.FromID,
		"to_id":         e.ToID,
		"amount":        e.Amount.String(),
		"description":   e.Description,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	}
}

// GenerateHash derives the chain hash over the entry's stable fields.
func (e *Entry) GenerateHash() string {
	fields := e.hashFields()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
