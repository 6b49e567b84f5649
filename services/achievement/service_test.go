package achievement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"incentive-controlplane/services/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Definition{}, &Unlock{})
	return NewService(ServiceParams{DB: db})
}

func TestDefineAssignsSequentialOrdinals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Define(ctx, DefineRequest{Name: "first listing", Threshold: 1, Reward: "1000"})
	require.NoError(t, err)
	require.Equal(t, int64(0), first)

	second, err := svc.Define(ctx, DefineRequest{Name: "regular", Threshold: 10, Reward: "5000"})
	require.NoError(t, err)
	require.Equal(t, int64(1), second)

	defs, err := svc.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "first listing", defs[0].Name)
	require.Equal(t, "regular", defs[1].Name)
}

func TestDefineValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{Threshold: 1, Reward: "10"})
	require.Error(t, err)

	_, err = svc.Define(ctx, DefineRequest{Name: "bad threshold", Threshold: -1, Reward: "10"})
	require.Error(t, err)

	_, err = svc.Define(ctx, DefineRequest{Name: "bad reward", Threshold: 1, Reward: "abc"})
	require.Error(t, err)

	_, err = svc.Define(ctx, DefineRequest{Name: "negative reward", Threshold: 1, Reward: "-5"})
	require.Error(t, err)

	_, err = svc.Define(ctx, DefineRequest{
		Name:      "bad qualifier",
		Threshold: 1,
		Reward:    "10",
		Qualifier: "reputation >>> 5",
	})
	require.ErrorIs(t, err, ErrInvalidQualifier)
}

func TestEvaluateUnlocksInDefinitionOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{Name: "one", Threshold: 1, Reward: "100"})
	require.NoError(t, err)
	_, err = svc.Define(ctx, DefineRequest{Name: "five", Threshold: 5, Reward: "500"})
	require.NoError(t, err)
	_, err = svc.Define(ctx, DefineRequest{Name: "ten", Threshold: 10, Reward: "1000"})
	require.NoError(t, err)

	grants, err := svc.Evaluate(ctx, "alice", Attributes{Engagements: 6})
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.Equal(t, int64(0), grants[0].Ordinal)
	require.Equal(t, int64(1), grants[1].Ordinal)
	require.Equal(t, "100", grants[0].Reward)
	require.Equal(t, "500", grants[1].Reward)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{Name: "one", Threshold: 1, Reward: "100"})
	require.NoError(t, err)

	grants, err := svc.Evaluate(ctx, "alice", Attributes{Engagements: 3})
	require.NoError(t, err)
	require.Len(t, grants, 1)

	// Same attributes again: nothing new.
	grants, err = svc.Evaluate(ctx, "alice", Attributes{Engagements: 3})
	require.NoError(t, err)
	require.Empty(t, grants)

	// Higher attributes still grant nothing already unlocked.
	grants, err = svc.Evaluate(ctx, "alice", Attributes{Engagements: 100})
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestEvaluateIsPerActor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{Name: "one", Threshold: 1, Reward: "100"})
	require.NoError(t, err)

	grants, err := svc.Evaluate(ctx, "alice", Attributes{Engagements: 1})
	require.NoError(t, err)
	require.Len(t, grants, 1)

	grants, err = svc.Evaluate(ctx, "bob", Attributes{Engagements: 1})
	require.NoError(t, err)
	require.Len(t, grants, 1)
}

func TestEvaluateQualifierGatesUnlock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{
		Name:      "respected",
		Threshold: 1,
		Reward:    "100",
		Qualifier: "reputation >= 50 && level >= 2",
	})
	require.NoError(t, err)

	grants, err := svc.Evaluate(ctx, "alice", Attributes{Engagements: 5, Level: 1, Reputation: 80})
	require.NoError(t, err)
	require.Empty(t, grants)

	grants, err = svc.Evaluate(ctx, "alice", Attributes{Engagements: 5, Level: 2, Reputation: 80})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, "respected", grants[0].Name)
}

func TestEvaluateWithNoDefinitions(t *testing.T) {
	svc := newTestService(t)

	grants, err := svc.Evaluate(context.Background(), "alice", Attributes{Engagements: 100})
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestUnlockVector(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Define(ctx, DefineRequest{Name: "one", Threshold: 1, Reward: "100"})
	require.NoError(t, err)
	_, err = svc.Define(ctx, DefineRequest{Name: "ten", Threshold: 10, Reward: "1000"})
	require.NoError(t, err)

	_, err = svc.Evaluate(ctx, "alice", Attributes{Engagements: 2})
	require.NoError(t, err)

	vector, err := svc.UnlockVector(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, vector)

	vector, err = svc.UnlockVector(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, vector)
}
