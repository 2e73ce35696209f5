package handler

import (
	"strconv"
	"strings"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletHandler handles wallet, balance and netting endpoints.
type WalletHandler struct {
	masterSvc  ports.MasterDataService
	balanceSvc ports.BalanceService
	nettingSvc ports.NettingService
	reconSvc   ports.ReconcilerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(
	masterSvc ports.MasterDataService,
	balanceSvc ports.BalanceService,
	nettingSvc ports.NettingService,
	reconSvc ports.ReconcilerService,
) *WalletHandler {
	return &WalletHandler{
		masterSvc:  masterSvc,
		balanceSvc: balanceSvc,
		nettingSvc: nettingSvc,
		reconSvc:   reconSvc,
	}
}

// Create handles POST /api/v1/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.masterSvc.CreateWallet(c.Request.Context(), ports.CreateWalletRequest{
		Name:         req.Name,
		CurrencyCode: req.CurrencyCode,
		DisplayUnit:  req.DisplayUnit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, wallet)
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	balances, err := h.balanceSvc.ListWalletBalances(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WalletSummary, 0, len(balances))
	for _, b := range balances {
		items = append(items, dto.WalletSummary{
			ID:           b.Wallet.ID,
			Name:         b.Wallet.Name,
			CurrencyCode: b.Wallet.CurrencyCode,
			DisplayUnit:  b.Wallet.DisplayUnit,
			Total:        b.Total,
		})
	}
	response.List(c, items, len(items))
}

// GetBalance handles GET /api/v1/wallets/:walletID/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	balance, err := h.balanceSvc.GetWalletBalance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}

// ListMovements handles GET /api/v1/wallets/:walletID/movements.
// Query: state (open|settled), page, page_size.
func (h *WalletHandler) ListMovements(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	page, err := intQuery(c, "page", 1)
	if err != nil {
		response.Error(c, err)
		return
	}
	pageSize, err := intQuery(c, "page_size", 50)
	if err != nil {
		response.Error(c, err)
		return
	}

	params := ports.MovementListParams{WalletID: walletID, Page: page, PageSize: pageSize}
	if s := c.Query("state"); s != "" {
		state := domain.MovementState(strings.ToUpper(s))
		params.State = &state
	}

	records, total, err := h.balanceSvc.ListMovements(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.MovementListResponse{
		Items:    dto.NewMovementViews(records),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// PreviewOffsets handles GET /api/v1/wallets/:walletID/offsets?amount=.
func (h *WalletHandler) PreviewOffsets(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal number"))
		return
	}

	groups, err := h.nettingSvc.PreviewOffsets(c.Request.Context(), walletID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	views := dto.NewOffsetGroupViews(groups)
	response.List(c, views, len(views))
}

// ApplyMovement handles POST /api/v1/wallets/:walletID/movements.
func (h *WalletHandler) ApplyMovement(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	var req dto.ApplyMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	mreq := ports.MovementRequest{
		WalletID:      walletID,
		TransactionID: uuid.MustParse(req.TransactionID),
		Amount:        req.Amount,
	}
	if req.Tag != nil {
		key, err := req.Tag.Key()
		if err != nil {
			response.Error(c, apperror.ErrInvalidAttribute(err))
			return
		}
		mreq.ResidualTag = &key
	}
	for _, o := range req.Overrides {
		key, err := o.Key()
		if err != nil {
			response.Error(c, apperror.ErrInvalidAttribute(err))
			return
		}
		mreq.Overrides = append(mreq.Overrides, ports.GroupOverride{Key: key, Amount: o.Amount})
	}

	result, err := h.nettingSvc.ApplyMovement(c.Request.Context(), mreq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Rebuild handles POST /api/v1/wallets/:walletID/rebuild.
func (h *WalletHandler) Rebuild(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	report, err := h.reconSvc.Rebuild(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Verify handles GET /api/v1/wallets/:walletID/verify. A wallet that fails
// verification answers 409 with the report attached.
func (h *WalletHandler) Verify(c *gin.Context) {
	walletID, ok := walletParam(c)
	if !ok {
		return
	}

	report, err := h.reconSvc.Verify(c.Request.Context(), walletID)
	if err != nil {
		if report != nil && apperror.IsConsistency(err) {
			response.ErrorWithDetails(c, err, report)
			return
		}
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func walletParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("walletID"))
	if err != nil {
		response.Error(c, apperror.Validation("walletID must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation(name + " must be an integer")
	}
	return v, nil
}
