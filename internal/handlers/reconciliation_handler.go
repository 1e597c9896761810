package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"dispute-reconciliation-backend/internal/auth"
	"dispute-reconciliation-backend/internal/extraction"
	"dispute-reconciliation-backend/internal/models"
	"dispute-reconciliation-backend/internal/repository"
	service "dispute-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerStore is the slice of the persistence layer the ledger endpoints
// need; *repository.Store satisfies it.
type LedgerStore interface {
	CreateDisputeItem(ctx context.Context, item *models.DisputeItem) error
	DisputeItemsForClient(ctx context.Context, clientID uuid.UUID, bureau models.Bureau) ([]models.DisputeItem, error)
	ViolationsForClient(ctx context.Context, clientID uuid.UUID) ([]models.ReinsertionViolation, error)
}

type ReconciliationHandler struct {
	service *service.Service
	store   LedgerStore
	gateway *extraction.Client
}

func NewReconciliationHandler(svc *service.Service, store LedgerStore, gateway *extraction.Client) *ReconciliationHandler {
	return &ReconciliationHandler{service: svc, store: store, gateway: gateway}
}

// Reconcile runs one reconciliation. The caller either supplies the
// extraction payload inline or names a document for the gateway to extract.
// A gateway failure is not a request failure: the run proceeds and yields a
// parse-error result the reviewer can still see.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var payload struct {
		ClientID   string          `json:"client_id"`
		Bureau     string          `json:"bureau"`
		Round      int             `json:"round"`
		DocumentID string          `json:"document_id"`
		Extraction json.RawMessage `json:"extraction"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	clientID, err := uuid.Parse(payload.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}

	raw := []byte(payload.Extraction)
	if len(raw) == 0 && payload.DocumentID != "" {
		if h.gateway == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "extraction gateway not configured"})
			return
		}
		raw, err = h.gateway.Extract(c.Request.Context(), payload.DocumentID, models.Bureau(payload.Bureau))
		if err != nil {
			log.Println("extraction gateway failed:", err)
			raw = nil
		}
	}

	result, err := h.service.Reconcile(c.Request.Context(), raw, clientID, models.Bureau(payload.Bureau), payload.Round)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBureau), errors.Is(err, service.ErrInvalidRound):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reconciliation complete", "result": result})
}

// GetResult returns one run with its full match and violation detail.
func (h *ReconciliationHandler) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result ID"})
		return
	}
	result, err := h.service.Result(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListResults lists a client's reconciliation runs, newest first.
func (h *ReconciliationHandler) ListResults(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}
	results, err := h.service.Results(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Apply commits a reviewed run. The reviewer identity comes from the auth
// middleware, never from the request body.
func (h *ReconciliationHandler) Apply(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result ID"})
		return
	}
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing staff identity"})
		return
	}

	var payload struct {
		Overrides []models.MatchResult `json:"overrides"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	outcome, err := h.service.Apply(c.Request.Context(), id, identity.Email, payload.Overrides)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconciliation applied", "outcome": outcome})
}

// CreateDisputeItem is the minimal intake surface for the ledger.
func (h *ReconciliationHandler) CreateDisputeItem(c *gin.Context) {
	var payload struct {
		ClientID      string `json:"client_id"`
		Bureau        string `json:"bureau"`
		CreditorName  string `json:"creditor_name"`
		AccountNumber string `json:"account_number"`
		DisputeRound  int    `json:"dispute_round"`
		Status        string `json:"status"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	clientID, err := uuid.Parse(payload.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}
	bureau := models.Bureau(payload.Bureau)
	if !bureau.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bureau"})
		return
	}
	if payload.CreditorName == "" || payload.DisputeRound < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creditor name and positive round required"})
		return
	}

	status := models.StatusPending
	if payload.Status != "" {
		status = models.DisputeStatus(payload.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}

	item := &models.DisputeItem{
		ID:            uuid.New(),
		ClientID:      clientID,
		Bureau:        bureau,
		CreditorName:  payload.CreditorName,
		AccountNumber: payload.AccountNumber,
		DisputeRound:  payload.DisputeRound,
		Status:        status,
		CreatedAt:     time.Now(),
	}
	if err := h.store.CreateDisputeItem(c.Request.Context(), item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dispute item created", "item": item})
}

// ListDisputeItems returns a client's ledger for one bureau.
func (h *ReconciliationHandler) ListDisputeItems(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}
	bureau := models.Bureau(c.Query("bureau"))
	if !bureau.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bureau"})
		return
	}
	items, err := h.store.DisputeItemsForClient(c.Request.Context(), clientID, bureau)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListViolations returns a client's durable reinsertion violation records.
func (h *ReconciliationHandler) ListViolations(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}
	violations, err := h.store.ViolationsForClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": violations})
}
