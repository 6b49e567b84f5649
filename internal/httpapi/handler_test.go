package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"incentive-controlplane/pkg/authz"
	"incentive-controlplane/pkg/config"
	"incentive-controlplane/pkg/middleware"
	"incentive-controlplane/services/achievement"
	"incentive-controlplane/services/challenge"
	"incentive-controlplane/services/engine"
	"incentive-controlplane/services/event"
	"incentive-controlplane/services/ledger"
	"incentive-controlplane/services/pricing"
	"incentive-controlplane/services/progression"
	"incentive-controlplane/services/referral"
	"incentive-controlplane/services/testutil"
)

func newTestRouter(t *testing.T) (*gin.Engine, *ledger.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t,
		&engine.Listing{}, &engine.ActorStats{}, &engine.State{},
		&referral.Edge{}, &progression.Progress{},
		&achievement.Definition{}, &achievement.Unlock{},
		&challenge.Challenge{}, &event.Event{},
		&ledger.Account{}, &ledger.Entry{},
	)

	cfg := &config.Config{
		Engine: config.Engine{
			InitialPrice:        "1000",
			PriceMultiplier:     "1.05",
			ReferralDiscountBps: 1_000,
			LevelThreshold:      10,
			EngagementBase:      "1000",
			EngagementCooldown:  24 * time.Hour,
			WeeklyInterval:      7 * 24 * time.Hour,
			WeeklyBonusBase:     "5000",
			PurchaseChiefBonus:  "50",
			ChiefBonusBps:       500,
			ChiefMinBalance:     "10000",
			ChiefMinLevel:       0,
			EscrowAccount:       "sys:escrow",
			TreasuryAccount:     "sys:treasury",
		},
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	curve, err := pricing.NewCurve(cfg)
	require.NoError(t, err)

	prog, err := progression.NewService(progression.ServiceParams{DB: db, Config: cfg})
	require.NoError(t, err)

	ac := authz.Static{"admin": true}
	led := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	ach := achievement.NewService(achievement.ServiceParams{DB: db})

	svc, err := engine.NewService(engine.ServiceParams{
		DB:           db,
		Node:         node,
		Config:       cfg,
		Authz:        ac,
		Curve:        curve,
		Referrals:    referral.NewService(referral.ServiceParams{DB: db}),
		Progress:     prog,
		Achievements: ach,
		Challenges:   challenge.NewService(challenge.ServiceParams{DB: db}),
		Events:       event.NewService(event.ServiceParams{DB: db}),
		Ledger:       led,
	})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, NewHandler(HandlerParams{
		Engine:       svc,
		Ledger:       led,
		Achievements: ach,
		Authz:        ac,
	}))

	return r, led
}

func doJSON(t *testing.T, r *gin.Engine, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func fundActor(t *testing.T, led *ledger.Service, actor string, amount int64) {
	t.Helper()
	_, err := led.Mint(context.Background(), ledger.MintRequest{
		To:     actor,
		Amount: big.NewInt(amount),
	}, time.Now().UTC())
	require.NoError(t, err)
}

func TestCreateListingEndpoint(t *testing.T) {
	r, led := newTestRouter(t)

	fundActor(t, led, "alice", 1000)
	w := doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var listing map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Equal(t, float64(0), listing["index"])
	require.Equal(t, "alice", listing["creator_id"])
	require.Equal(t, "1000", listing["price_paid"])

	w = doJSON(t, r, http.MethodGet, "/v1/price/next", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"next_price":"1050"}`, w.Body.String())
}

func TestCreateListingRequiresActorHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/listings", "", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateListingInsufficientPayment(t *testing.T) {
	r, led := newTestRouter(t)

	fundActor(t, led, "alice", 999)
	w := doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "999",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEngagementEndpointFlow(t *testing.T) {
	r, led := newTestRouter(t)

	fundActor(t, led, "alice", 1000)
	w := doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/listings/0/engagements", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, true, res["rewarded"])
	require.Equal(t, "1000", res["reward"])

	// Self engagement is a structural rejection.
	w = doJSON(t, r, http.MethodPost, "/v1/listings/0/engagements", "alice", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown listing.
	w = doJSON(t, r, http.MethodPost, "/v1/listings/42/engagements", "bob", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// The actor bundle reflects the engagement.
	w = doJSON(t, r, http.MethodGet, "/v1/actors/bob", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var bundle map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	require.Equal(t, float64(1), bundle["engagements"])
	require.Equal(t, "1000", bundle["balance"])
}

func TestReferralEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/referrals", "bob", gin.H{"referrer": "alice"})
	require.Equal(t, http.StatusNoContent, w.Code)

	// A second assignment conflicts.
	w = doJSON(t, r, http.MethodPost, "/v1/referrals", "bob", gin.H{"referrer": "carol"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/referrals", "dave", gin.H{"referrer": "dave"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/admin/pause", "mallory", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/admin/achievements", "mallory", gin.H{
		"name": "x", "threshold": 1, "reward": "10",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/admin/weekly-bonus", "mallory", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/admin/ledger/verify", "mallory", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestPauseEndpointBlocksCommands(t *testing.T) {
	r, led := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/admin/pause", "admin", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	fundActor(t, led, "alice", 1000)
	w = doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/admin/unpause", "admin", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestAdminDefineAndCatalog(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/admin/achievements", "admin", gin.H{
		"name":      "first engagement",
		"threshold": 1,
		"reward":    "777",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"ordinal":0}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/v1/achievements", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Achievements []map[string]any `json:"achievements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Achievements, 1)
}

func TestChallengeAndEventStatusEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/admin/challenge", "admin", gin.H{
		"description": "list things",
		"goal":        5,
		"pool":        "1000",
		"duration":    "24h",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/challenge", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "active", status["state"])

	w = doJSON(t, r, http.MethodPost, "/v1/admin/event", "admin", gin.H{
		"name":       "double weekend",
		"duration":   "48h",
		"multiplier": 200,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/event", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	require.Equal(t, true, ev["active"])
}

func TestLedgerAdminEndpoints(t *testing.T) {
	r, led := newTestRouter(t)

	fundActor(t, led, "alice", 1000)
	w := doJSON(t, r, http.MethodPost, "/v1/listings", "alice", gin.H{
		"content": "ipfs://a",
		"payment": "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/admin/ledger/verify", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/admin/ledger/entries?account=alice", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries  []map[string]any `json:"entries"`
		PageInfo struct {
			NextCursor string `json:"next_cursor"`
			HasMore    bool   `json:"has_more"`
		} `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Entries)

	// alice has at least the funding mint and the purchase transfers, so a
	// page of one must report more behind the cursor.
	w = doJSON(t, r, http.MethodGet, "/v1/admin/ledger/entries?account=alice&limit=1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	require.True(t, body.PageInfo.HasMore)
	require.NotEmpty(t, body.PageInfo.NextCursor)

	first := body.Entries[0]["id"]
	w = doJSON(t, r, http.MethodGet,
		"/v1/admin/ledger/entries?account=alice&limit=1&cursor="+url.QueryEscape(body.PageInfo.NextCursor), "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	require.NotEqual(t, first, body.Entries[0]["id"])
}
