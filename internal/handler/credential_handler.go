package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"taxly/internal/middleware"
	"taxly/internal/service"

	"github.com/gin-gonic/gin"
)

type CredentialHandler struct {
	svc *service.CredentialService
}

func NewCredentialHandler(svc *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{svc: svc}
}

type CreateCredentialRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	CertData     string `json:"cert_data" binding:"required"`
	PrivateKey   string `json:"private_key" binding:"required"`
	CertPassword string `json:"cert_password"`
	CertName     string `json:"cert_name"`
	CertType     string `json:"cert_type"`
	ExpiresAt    string `json:"expires_at"` // ISO date, optional
}

func (h *CredentialHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse("2006-01-02", req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_at format (use YYYY-MM-DD)"})
			return
		}
		expiresAt = &t
	}
	cred, err := h.svc.Create(userID, service.CreateCredentialInput{
		ClientID:     req.ClientID,
		CertData:     req.CertData,
		PrivateKey:   req.PrivateKey,
		CertPassword: req.CertPassword,
		CertName:     req.CertName,
		CertType:     req.CertType,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		switch err {
		case service.ErrInvalidClientID:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[credential] create failed: user=%d err=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"credential": cred})
}

func (h *CredentialHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	creds, err := h.svc.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

func (h *CredentialHandler) credentialID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credential id"})
		return 0, false
	}
	return uint(id), true
}

func (h *CredentialHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, ok := h.credentialID(c)
	if !ok {
		return
	}
	cred, err := h.svc.Get(userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credential": cred})
}

func (h *CredentialHandler) Deactivate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, ok := h.credentialID(c)
	if !ok {
		return
	}
	cred, err := h.svc.Deactivate(userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credential": cred})
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, ok := h.credentialID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(userID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// TestConnection verifies the stored certificate still works. Metered:
// RequireCredit has already deducted before this runs.
func (h *CredentialHandler) TestConnection(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, ok := h.credentialID(c)
	if !ok {
		return
	}
	cred, err := h.svc.TestConnection(userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "credential": cred})
}

func (h *CredentialHandler) respondError(c *gin.Context, err error) {
	switch err {
	case service.ErrCredentialNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.ErrForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case service.ErrInvalidClientID:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
