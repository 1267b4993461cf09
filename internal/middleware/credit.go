package middleware

import (
	"errors"
	"net/http"

	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

// RequireCredit deducts cost credits before the handler runs. Use after
// AuthRequired. On shortfall it responds 402 with how many credits the
// caller is missing so the client can prompt a top-up.
func RequireCredit(creditSvc *service.CreditService, cost int, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		entry, err := creditSvc.Deduct(userID, cost, description, nil)
		if err != nil {
			if errors.Is(err, service.ErrInsufficientCredits) {
				balance, _, _ := creditSvc.GetBalance(userID)
				c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
					"error":    "insufficient credits",
					"code":     "INSUFFICIENT_CREDITS",
					"required": cost,
					"current":  balance,
					"needed":   cost - balance,
				})
				return
			}
			if errors.Is(err, service.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credit deduction failed"})
			return
		}
		c.Set("credit_transaction_id", entry.ID)
		c.Next()
	}
}
