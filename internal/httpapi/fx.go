package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")

	v1.POST("/listings", h.CreateListing)
	v1.GET("/listings", h.ActiveListings)
	v1.GET("/listings/:index", h.GetListing)
	v1.POST("/listings/:index/engagements", h.RecordEngagement)
	v1.POST("/listings/:index/deactivate", h.DeactivateListing)
	v1.GET("/price/next", h.NextPrice)

	v1.POST("/referrals", h.AssignReferrer)
	v1.POST("/chief/claim", h.ClaimTopReferrer)

	v1.GET("/actors/:actor", h.GetActorBundle)
	v1.GET("/actors/:actor/balance", h.GetBalance)

	v1.GET("/achievements", h.AchievementCatalog)
	v1.GET("/challenge", h.ChallengeStatus)
	v1.GET("/event", h.EventStatus)
	v1.GET("/status", h.EngineStatus)

	admin := v1.Group("/admin")
	admin.POST("/achievements", h.DefineAchievement)
	admin.POST("/challenge", h.StartChallenge)
	admin.POST("/event", h.StartEvent)
	admin.POST("/weekly-bonus", h.AwardWeeklyBonus)
	admin.POST("/pause", h.Pause)
	admin.POST("/unpause", h.Unpause)
	admin.GET("/ledger/entries", h.LedgerEntries)
	admin.GET("/ledger/verify", h.VerifyLedger)
}
