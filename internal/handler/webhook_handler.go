package handler

import (
	"log"
	"net/http"

	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	paymentSvc    *service.PaymentService
	credentialSvc *service.CredentialService
	auditRepo     *repository.AuditRepository
}

func NewWebhookHandler(paymentSvc *service.PaymentService, credentialSvc *service.CredentialService, auditRepo *repository.AuditRepository) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc, credentialSvc: credentialSvc, auditRepo: auditRepo}
}

// Nicepay receives the gateway's server-to-server settlement notification
// (virtual-account deposits and the like). The gateway expects a literal OK
// body on success.
func (h *WebhookHandler) Nicepay(c *gin.Context) {
	var noti service.WebhookNotification
	if err := c.ShouldBindJSON(&noti); err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}
	_, err := h.paymentSvc.HandleWebhook(noti)
	if err != nil {
		switch err {
		case service.ErrAlreadyPaid:
			// Duplicate notification; nothing to redo.
			c.String(http.StatusOK, "OK")
		case service.ErrPaymentNotFound:
			c.String(http.StatusNotFound, "unknown order")
		case service.ErrInvalidPaymentMethod:
			log.Printf("[webhook] rejected subscription order %s via deposit channel", noti.OrderID)
			c.String(http.StatusBadRequest, "subscription orders cannot settle via webhook")
		case service.ErrAmountMismatch:
			c.String(http.StatusBadRequest, "amount mismatch")
		default:
			log.Printf("[webhook] nicepay order=%s err=%v", noti.OrderID, err)
			c.String(http.StatusInternalServerError, "error")
		}
		return
	}
	c.String(http.StatusOK, "OK")
}

type DecryptCredentialsRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

// DecryptCredentials trades a business registration number for usable
// certificate material. X-API-Key gated; the consumer is the external
// workflow-automation service.
func (h *WebhookHandler) DecryptCredentials(c *gin.Context) {
	var req DecryptCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cred, err := h.credentialSvc.DecryptByClientID(req.ClientID)
	if err != nil {
		switch err {
		case service.ErrInvalidClientID:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case service.ErrCredentialNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			log.Printf("[webhook] decrypt credentials client_id=%s err=%v", req.ClientID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "decryption failed"})
		}
		return
	}
	h.auditLog("credential_decrypt", req.ClientID, c)
	c.JSON(http.StatusOK, gin.H{"credential": cred})
}

func (h *WebhookHandler) auditLog(action, resourceID string, c *gin.Context) {
	if h.auditRepo == nil {
		return
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		Action:     action,
		Resource:   "credential",
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
