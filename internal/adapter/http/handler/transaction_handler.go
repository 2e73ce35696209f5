package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransactionHandler handles transaction header endpoints.
type TransactionHandler struct {
	masterSvc ports.MasterDataService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(masterSvc ports.MasterDataService) *TransactionHandler {
	return &TransactionHandler{masterSvc: masterSvc}
}

// Create handles POST /api/v1/transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	at, err := req.Serial()
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.masterSvc.CreateTransaction(c.Request.Context(), ports.CreateTransactionRequest{
		Name:         req.Name,
		TransactedAt: at,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, txn)
}
