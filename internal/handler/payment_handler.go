package handler

import (
	"log"
	"net/http"
	"strconv"

	"taxly/internal/domain"
	"taxly/internal/middleware"
	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	svc       *service.PaymentService
	auditRepo *repository.AuditRepository
}

func NewPaymentHandler(svc *service.PaymentService, auditRepo *repository.AuditRepository) *PaymentHandler {
	return &PaymentHandler{svc: svc, auditRepo: auditRepo}
}

type PrepareCreditRequest struct {
	PackID string `json:"pack_id" binding:"required"`
}

func (h *PaymentHandler) PrepareCredit(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req PrepareCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, result, err := h.svc.PrepareCreditPayment(c.Request.Context(), userID, req.PackID)
	if err != nil {
		switch err {
		case service.ErrInvalidCreditPack:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[payment] prepare credit failed: user=%d pack=%s err=%v", userID, req.PackID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":     payment.OrderID,
		"amount":       payment.Amount,
		"client_token": result.ClientToken,
	})
}

type PrepareSubscriptionRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (h *PaymentHandler) PrepareSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req PrepareSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, result, err := h.svc.PrepareSubscriptionPayment(c.Request.Context(), userID, req.Tier)
	if err != nil {
		switch err {
		case service.ErrInvalidTier, service.ErrCustomTier:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[payment] prepare subscription failed: user=%d tier=%s err=%v", userID, req.Tier, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":     payment.OrderID,
		"amount":       payment.Amount,
		"client_token": result.ClientToken,
	})
}

// PrepareUpgrade opens a checkout for the prorated cost of an immediate
// tier upgrade.
func (h *PaymentHandler) PrepareUpgrade(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req PrepareSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, result, quote, err := h.svc.PrepareTierUpgradePayment(c.Request.Context(), userID, req.Tier)
	if err != nil {
		switch err {
		case service.ErrSubscriptionNotFound, service.ErrNoActiveSubscription:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTier, service.ErrInvalidTierChange, service.ErrCustomTier:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[payment] prepare upgrade failed: user=%d tier=%s err=%v", userID, req.Tier, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":     payment.OrderID,
		"amount":       payment.Amount,
		"client_token": result.ClientToken,
		"quote":        quote,
	})
}

type ApproveRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	TID     string `json:"tid" binding:"required"`
	Amount  int    `json:"amount" binding:"required"`
}

func (h *PaymentHandler) Approve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := h.svc.ApprovePayment(c.Request.Context(), userID, req.OrderID, req.TID, req.Amount)
	if err != nil {
		switch err {
		case service.ErrPaymentNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrForbidden:
			h.auditLog(userID, "payment_approve_forbidden", req.OrderID, c)
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case service.ErrAlreadyPaid:
			c.JSON(http.StatusOK, gin.H{"payment": payment, "already_processed": true})
		case service.ErrAmountMismatch:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "AMOUNT_MISMATCH"})
		default:
			log.Printf("[payment] approve failed: user=%d order=%s err=%v", userID, req.OrderID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	isAdmin := middleware.GetRole(c) == domain.RoleAdmin
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	payment, err := h.svc.CancelPayment(c.Request.Context(), userID, isAdmin, uint(id), req.Reason)
	if err != nil {
		switch err {
		case service.ErrPaymentNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrForbidden:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case service.ErrCannotCancel:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[payment] cancel failed: user=%d payment=%d err=%v", userID, id, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (h *PaymentHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := c.Query("status")

	rows, total, err := h.svc.History(userID, limit, offset, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payments": rows,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *PaymentHandler) auditLog(userID uint, action, resourceID string, c *gin.Context) {
	if h.auditRepo == nil {
		return
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
