package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"taxly/internal/middleware"
	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	creditSvc *service.CreditService
	userRepo  *repository.UserRepository
	auditRepo *repository.AuditRepository
}

func NewAdminHandler(creditSvc *service.CreditService, userRepo *repository.UserRepository, auditRepo *repository.AuditRepository) *AdminHandler {
	return &AdminHandler{creditSvc: creditSvc, userRepo: userRepo, auditRepo: auditRepo}
}

type GrantCreditsRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	Amount      int    `json:"amount" binding:"required"` // signed: negative deducts
	Description string `json:"description" binding:"required"`
}

func (h *AdminHandler) GrantCredits(c *gin.Context) {
	adminID := middleware.GetUserID(c)
	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.creditSvc.AdminGrant(req.UserID, req.Amount, req.Description, adminID)
	if err != nil {
		switch err {
		case service.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInsufficientCredits:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INSUFFICIENT_CREDITS"})
		case service.ErrInvalidAmount:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[admin] grant failed: admin=%d user=%d amount=%d err=%v", adminID, req.UserID, req.Amount, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		}
		return
	}
	h.auditLog(adminID, "admin_credit_grant", fmt.Sprintf("user:%d amount:%d", req.UserID, req.Amount), c)
	c.JSON(http.StatusCreated, gin.H{"transaction": entry})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	users, total, err := h.userRepo.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	logs, total, err := h.auditRepo.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *AdminHandler) auditLog(adminID uint, action, resourceID string, c *gin.Context) {
	if h.auditRepo == nil {
		return
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		UserID:     &adminID,
		Action:     action,
		Resource:   "credits",
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
