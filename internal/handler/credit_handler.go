package handler

import (
	"net/http"
	"strconv"

	"taxly/internal/domain"
	"taxly/internal/middleware"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type CreditHandler struct {
	svc *service.CreditService
}

func NewCreditHandler(svc *service.CreditService) *CreditHandler {
	return &CreditHandler{svc: svc}
}

func (h *CreditHandler) GetBalance(c *gin.Context) {
	userID := middleware.GetUserID(c)
	balance, tier, err := h.svc.GetBalance(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance, "tier": tier})
}

func (h *CreditHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	txType := c.Query("type")

	rows, total, err := h.svc.History(userID, limit, offset, txType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": rows,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

// Plans serves the public pricing catalog: subscription tiers plus the
// one-time credit packs.
func (h *CreditHandler) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tiers":        domain.Tiers(),
		"credit_packs": domain.CreditPacks(),
	})
}
