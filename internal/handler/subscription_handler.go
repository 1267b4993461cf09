package handler

import (
	"log"
	"net/http"

	"taxly/internal/middleware"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	svc *service.SubscriptionService
}

func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

func (h *SubscriptionHandler) GetMine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sub, err := h.svc.GetByUserID(userID)
	if err != nil {
		if err == service.ErrSubscriptionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	sub, err := h.svc.Cancel(userID, req.Reason)
	if err != nil {
		switch err {
		case service.ErrSubscriptionNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrNoActiveSubscription:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[subscription] cancel failed: user=%d err=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancellation failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sub, err := h.svc.Reactivate(userID)
	if err != nil {
		switch err {
		case service.ErrSubscriptionNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrCannotReactivate:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[subscription] reactivate failed: user=%d err=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reactivation failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

type ChangeTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// ChangeTier handles downgrades and pending-downgrade cancellations.
// Upgrades carry a prorated charge and must go through the upgrade checkout
// (payments/prepare-upgrade then approve), which applies the change itself.
func (h *SubscriptionHandler) ChangeTier(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := h.svc.ChangeTier(userID, req.Tier, nil)
	if err != nil {
		switch err {
		case service.ErrSubscriptionNotFound, service.ErrNoActiveSubscription:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTier, service.ErrInvalidTierChange, service.ErrCustomTier:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_TIER_CHANGE"})
		case service.ErrPaymentRequired:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "code": "PAYMENT_REQUIRED"})
		default:
			log.Printf("[subscription] change tier failed: user=%d tier=%s err=%v", userID, req.Tier, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tier change failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// Quote prices a prospective tier change without applying it.
func (h *SubscriptionHandler) Quote(c *gin.Context) {
	userID := middleware.GetUserID(c)
	tier := c.Query("tier")
	if tier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier query parameter is required"})
		return
	}
	quote, err := h.svc.Quote(userID, tier)
	if err != nil {
		switch err {
		case service.ErrSubscriptionNotFound, service.ErrNoActiveSubscription:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTier, service.ErrInvalidTierChange, service.ErrCustomTier:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "quote failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}
