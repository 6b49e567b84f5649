package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"incentive-controlplane/pkg/db/pagination"
	"incentive-controlplane/services/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Account{}, &Entry{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestMintCreditsAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	entry, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(500), Description: "engagement reward"}, now)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, TypeMint, entry.Type)
	require.Empty(t, entry.FromID)

	balance, err := svc.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "500", balance.String())
}

func TestMintZeroIsNoop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(0)}, time.Now())
	require.NoError(t, err)
	require.Nil(t, entry)

	entries, err := svc.Entries(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMintValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.Mint(ctx, MintRequest{To: "", Amount: big.NewInt(1)}, now)
	require.ErrorIs(t, err, ErrEmptyAccount)

	_, err = svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(-1)}, now)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Mint(ctx, MintRequest{To: "alice"}, now)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransferMovesBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(1000)}, now)
	require.NoError(t, err)

	entry, err := svc.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: big.NewInt(300)}, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, TypeTransfer, entry.Type)

	aliceBalance, err := svc.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "700", aliceBalance.String())

	bobBalance, err := svc.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "300", bobBalance.String())
}

func TestTransferInsufficientFunds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(100)}, now)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: big.NewInt(101)}, now)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed transfer left no trace.
	aliceBalance, err := svc.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "100", aliceBalance.String())

	bobBalance, err := svc.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "0", bobBalance.String())

	count, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestBalanceOfUnknownAccount(t *testing.T) {
	svc := newTestService(t)

	balance, err := svc.BalanceOf(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, "0", balance.String())
}

func TestEntriesFiltersByAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(1000)}, now)
	require.NoError(t, err)
	_, err = svc.Mint(ctx, MintRequest{To: "carol", Amount: big.NewInt(50)}, now.Add(time.Second))
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: big.NewInt(200)}, now.Add(2*time.Second))
	require.NoError(t, err)

	entries, err := svc.Entries(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	require.Equal(t, TypeTransfer, entries[0].Type)
	require.Equal(t, TypeMint, entries[1].Type)

	all, err := svc.Entries(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	limited, err := svc.Entries(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestEntriesPageWalksChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(100)}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	page := pagination.Pagination{Limit: 2}
	for {
		entries, info, err := svc.EntriesPage(ctx, "alice", page)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		for _, e := range entries {
			require.False(t, seen[e.ID], "entry repeated across pages")
			seen[e.ID] = true
		}
		if !info.HasMore {
			break
		}
		require.NotEmpty(t, info.NextCursor)
		page.Cursor = info.NextCursor
	}
	require.Len(t, seen, 5)

	_, _, err := svc.EntriesPage(ctx, "alice", pagination.Pagination{Cursor: "not base64 at all", Limit: 2})
	require.Error(t, err)
}

func TestVerifyChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(1000)}, now)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: big.NewInt(400)}, now.Add(time.Second))
	require.NoError(t, err)
	_, err = svc.Mint(ctx, MintRequest{To: "bob", Amount: big.NewInt(5)}, now.Add(2*time.Second))
	require.NoError(t, err)

	count, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Mint(ctx, MintRequest{To: "alice", Amount: big.NewInt(1000)}, now)
	require.NoError(t, err)
	second, err := svc.Mint(ctx, MintRequest{To: "bob", Amount: big.NewInt(10)}, now.Add(time.Second))
	require.NoError(t, err)

	// Rewrite history on the second entry without re-hashing.
	require.NoError(t, svc.db.Model(&Entry{}).
		Where("id = ?", second.ID).
		Update("amount", "999999").Error)

	verified, err := svc.VerifyChain(ctx)
	require.ErrorIs(t, err, ErrChainBroken)
	require.Equal(t, int64(1), verified)
}
