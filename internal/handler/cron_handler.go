package handler

import (
	"log"
	"net/http"
	"time"

	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

// CronHandler backs the schedule-invoked internal endpoints. Each run is
// idempotent: what one invocation settled, the next simply skips.
type CronHandler struct {
	paymentSvc *service.PaymentService
	creditSvc  *service.CreditService
}

func NewCronHandler(paymentSvc *service.PaymentService, creditSvc *service.CreditService) *CronHandler {
	return &CronHandler{paymentSvc: paymentSvc, creditSvc: creditSvc}
}

func (h *CronHandler) RenewSubscriptions(c *gin.Context) {
	result, err := h.paymentSvc.RenewSubscriptions(c.Request.Context())
	if err != nil {
		log.Printf("[cron] renewal batch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "renewal batch failed"})
		return
	}
	log.Printf("[cron] renewals: total=%d success=%d failed=%d", result.Total, result.Success, result.Failed)
	c.JSON(http.StatusOK, result)
}

func (h *CronHandler) ExpireSubscriptions(c *gin.Context) {
	result, err := h.paymentSvc.ExpireSubscriptions()
	if err != nil {
		log.Printf("[cron] expiry batch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "expiry batch failed"})
		return
	}
	log.Printf("[cron] expirations: total=%d success=%d failed=%d", result.Total, result.Success, result.Failed)
	c.JSON(http.StatusOK, result)
}

func (h *CronHandler) ExpireCredits(c *gin.Context) {
	result, err := h.creditSvc.ExpireCredits(time.Now())
	if err != nil {
		log.Printf("[cron] credit expiry failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit expiry failed"})
		return
	}
	log.Printf("[cron] credit expiry: total=%d success=%d failed=%d", result.Total, result.Success, result.Failed)
	c.JSON(http.StatusOK, result)
}
