package referral

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"incentive-controlplane/services/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Edge{})
	return NewService(ServiceParams{DB: db})
}

func TestAssignReferrer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignReferrer(ctx, "alice", "bob"))

	got, err := svc.ReferrerOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "bob", got)

	recruits, err := svc.Referrals(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, recruits)
}

func TestAssignReferrerSelf(t *testing.T) {
	svc := newTestService(t)

	err := svc.AssignReferrer(context.Background(), "alice", "alice")
	require.ErrorIs(t, err, ErrSelfReferral)
}

func TestAssignReferrerTwice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignReferrer(ctx, "alice", "bob"))

	err := svc.AssignReferrer(ctx, "alice", "carol")
	require.ErrorIs(t, err, ErrAlreadyReferred)

	// The original edge survives.
	got, err := svc.ReferrerOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "bob", got)
}

func TestAssignReferrerEmpty(t *testing.T) {
	svc := newTestService(t)

	require.ErrorIs(t, svc.AssignReferrer(context.Background(), "", "bob"), ErrEmptyIdentity)
	require.ErrorIs(t, svc.AssignReferrer(context.Background(), "alice", ""), ErrEmptyIdentity)
}

func TestCascadePayoutFourDeepChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// dave → carol → bob → alice → (root)
	require.NoError(t, svc.AssignReferrer(ctx, "dave", "carol"))
	require.NoError(t, svc.AssignReferrer(ctx, "carol", "bob"))
	require.NoError(t, svc.AssignReferrer(ctx, "bob", "alice"))
	require.NoError(t, svc.AssignReferrer(ctx, "alice", "root"))

	payouts, err := svc.CascadePayout(ctx, "dave", big.NewInt(1_000))
	require.NoError(t, err)
	require.Len(t, payouts, 3)

	require.Equal(t, Payout{Recipient: "carol", Amount: "100", Hop: 0}, payouts[0])
	require.Equal(t, Payout{Recipient: "bob", Amount: "80", Hop: 1}, payouts[1])
	require.Equal(t, Payout{Recipient: "alice", Amount: "60", Hop: 2}, payouts[2])
}

func TestCascadePayoutTwoDeepChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignReferrer(ctx, "bob", "alice"))
	require.NoError(t, svc.AssignReferrer(ctx, "alice", "root"))

	payouts, err := svc.CascadePayout(ctx, "bob", big.NewInt(1_000))
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	require.Equal(t, "alice", payouts[0].Recipient)
	require.Equal(t, "root", payouts[1].Recipient)
}

func TestCascadePayoutNoEdges(t *testing.T) {
	svc := newTestService(t)

	payouts, err := svc.CascadePayout(context.Background(), "loner", big.NewInt(1_000))
	require.NoError(t, err)
	require.Empty(t, payouts)
}

func TestCascadePayoutFloorsAmounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignReferrer(ctx, "bob", "alice"))

	payouts, err := svc.CascadePayout(ctx, "bob", big.NewInt(7))
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.Equal(t, "0", payouts[0].Amount)
}
