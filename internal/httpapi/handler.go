package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"incentive-controlplane/pkg/authz"
	"incentive-controlplane/pkg/db/pagination"
	"incentive-controlplane/pkg/errutil"
	"incentive-controlplane/services/achievement"
	"incentive-controlplane/services/challenge"
	"incentive-controlplane/services/engine"
	"incentive-controlplane/services/ledger"
)

// ActorHeader carries the acting identity, injected by the authenticating
// proxy in front of the service.
const ActorHeader = "X-Actor-ID"

type Handler struct {
	engine       *engine.Service
	ledger       *ledger.Service
	achievements *achievement.Service
	authz        authz.Service
}

type HandlerParams struct {
	fx.In
	Engine       *engine.Service
	Ledger       *ledger.Service
	Achievements *achievement.Service
	Authz        authz.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		engine:       p.Engine,
		ledger:       p.Ledger,
		achievements: p.Achievements,
		authz:        p.Authz,
	}
}

// actor extracts the acting identity; an empty header rejects the request.
func (h *Handler) actor(c *gin.Context) (string, bool) {
	actor := c.GetHeader(ActorHeader)
	if actor == "" {
		_ = c.Error(errutil.BadRequest("missing "+ActorHeader+" header", nil))
		return "", false
	}
	return actor, true
}

func (h *Handler) index(c *gin.Context) (int64, bool) {
	idx, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		_ = c.Error(errutil.BadRequest("invalid listing index", err))
		return 0, false
	}
	return idx, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(apiError(err))
}

type createListingRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"content_type"`
	Referrer    string `json:"referrer"`
	Payment     string `json:"payment" binding:"required"`
}

func (h *Handler) CreateListing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	listing, err := h.engine.CreateListing(c.Request.Context(), engine.CreateListingRequest{
		Actor:       actor,
		Content:     req.Content,
		ContentType: req.ContentType,
		Referrer:    req.Referrer,
		Payment:     req.Payment,
	}, time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) RecordEngagement(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	idx, ok := h.index(c)
	if !ok {
		return
	}

	res, err := h.engine.RecordEngagement(c.Request.Context(), actor, idx, time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeactivateListing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	idx, ok := h.index(c)
	if !ok {
		return
	}

	if err := h.engine.DeactivateListing(c.Request.Context(), actor, idx, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type assignReferrerRequest struct {
	Referrer string `json:"referrer" binding:"required"`
}

func (h *Handler) AssignReferrer(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req assignReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.engine.AssignReferrer(c.Request.Context(), actor, req.Referrer); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ClaimTopReferrer(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.engine.ClaimTopReferrer(c.Request.Context(), actor, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetListing(c *gin.Context) {
	idx, ok := h.index(c)
	if !ok {
		return
	}

	listing, err := h.engine.GetListing(c.Request.Context(), idx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) ActiveListings(c *gin.Context) {
	listings, err := h.engine.ActiveListings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) NextPrice(c *gin.Context) {
	price, err := h.engine.NextPrice(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"next_price": price})
}

func (h *Handler) GetActorBundle(c *gin.Context) {
	bundle, err := h.engine.GetActorBundle(c.Request.Context(), c.Param("actor"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.BalanceOf(c.Request.Context(), c.Param("actor"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance.String()})
}

func (h *Handler) AchievementCatalog(c *gin.Context) {
	defs, err := h.achievements.Catalog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievements": defs})
}

func (h *Handler) ChallengeStatus(c *gin.Context) {
	status, err := h.engine.ChallengeStatus(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) EventStatus(c *gin.Context) {
	status, err := h.engine.EventStatus(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) EngineStatus(c *gin.Context) {
	status, err := h.engine.GetStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ---- admin ----

type defineAchievementRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Threshold   int64  `json:"threshold"`
	Reward      string `json:"reward" binding:"required"`
	Qualifier   string `json:"qualifier"`
}

func (h *Handler) DefineAchievement(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req defineAchievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ordinal, err := h.engine.DefineAchievement(c.Request.Context(), actor, achievement.DefineRequest{
		Name:        req.Name,
		Description: req.Description,
		Threshold:   req.Threshold,
		Reward:      req.Reward,
		Qualifier:   req.Qualifier,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ordinal": ordinal})
}

type startChallengeRequest struct {
	Description string `json:"description"`
	Goal        int64  `json:"goal" binding:"required"`
	Pool        string `json:"pool" binding:"required"`
	Duration    string `json:"duration" binding:"required"` // e.g. "168h"
}

func (h *Handler) StartChallenge(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req startChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		_ = c.Error(errutil.BadRequest("invalid duration", err))
		return
	}

	if err := h.engine.StartChallenge(c.Request.Context(), actor, challenge.StartRequest{
		Description: req.Description,
		Goal:        req.Goal,
		Pool:        req.Pool,
		Duration:    duration,
	}, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type startEventRequest struct {
	Name       string `json:"name" binding:"required"`
	Duration   string `json:"duration" binding:"required"`
	Multiplier int64  `json:"multiplier" binding:"required"`
}

func (h *Handler) StartEvent(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req startEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		_ = c.Error(errutil.BadRequest("invalid duration", err))
		return
	}

	if err := h.engine.StartEvent(c.Request.Context(), actor, req.Name, duration, req.Multiplier, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

func (h *Handler) AwardWeeklyBonus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if !h.authz.IsAdmin(actor) {
		h.fail(c, engine.ErrUnauthorized)
		return
	}

	award, err := h.engine.AwardWeeklyBonus(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, award)
}

func (h *Handler) Pause(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.engine.Pause(c.Request.Context(), actor, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Unpause(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.engine.Unpause(c.Request.Context(), actor, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) LedgerEntries(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if !h.authz.IsAdmin(actor) {
		h.fail(c, engine.ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, info, err := h.ledger.EntriesPage(c.Request.Context(), c.Query("account"), page)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "page_info": info})
}

func (h *Handler) VerifyLedger(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if !h.authz.IsAdmin(actor) {
		h.fail(c, engine.ErrUnauthorized)
		return
	}

	verified, err := h.ledger.VerifyChain(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified_entries": verified})
}
