package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/pkg/common"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// PortfolioHandler serves the caller's profile, accounts, positions and
// valuations
type PortfolioHandler struct {
	base
	portfolio *services.PortfolioService
	valuation *services.ValuationService
	logger    *zap.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(
	portfolio *services.PortfolioService,
	valuation *services.ValuationService,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *PortfolioHandler {
	return &PortfolioHandler{
		base:      base{errors: errorHandler},
		portfolio: portfolio,
		valuation: valuation,
		logger:    logger,
	}
}

// CreateAccountRequest is the body of POST /accounts
type CreateAccountRequest struct {
	Name         string          `json:"account_name" validate:"required,max=200"`
	Purpose      string          `json:"account_purpose,omitempty" validate:"max=500"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	CashInterest decimal.Decimal `json:"cash_interest"`
}

// RecordPositionRequest is the body of POST /accounts/{accountID}/positions.
// Quantity is the resulting holding and must be given, zero included.
type RecordPositionRequest struct {
	Symbol    string           `json:"symbol" validate:"required"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Action    string           `json:"action,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
}

// GetProfile handles GET /me
func (h *PortfolioHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	user, err := h.portfolio.GetProfile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, user)
}

// SaveProfile handles PUT /me
func (h *PortfolioHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var update entities.UserUpdate
	if !h.decode(w, r, &update) {
		return
	}
	user, err := h.portfolio.SaveProfile(r.Context(), userID, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, user)
}

// ListAccounts handles GET /accounts
func (h *PortfolioHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	accounts, err := h.portfolio.ListAccounts(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /accounts
func (h *PortfolioHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.portfolio.CreateAccount(r.Context(), userID, req.Name, req.Purpose, req.CashBalance, req.CashInterest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Account created", zap.String("userID", userID), zap.String("accountID", account.ID))
	common.RespondJSON(w, http.StatusCreated, account)
}

// GetAccount handles GET /accounts/{accountID}
func (h *PortfolioHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	account, err := h.portfolio.GetAccount(r.Context(), userID, chi.URLParam(r, "accountID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, account)
}

// Positions handles GET /accounts/{accountID}/positions?at
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	at, err := queryTime(r, "at", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	accountID := chi.URLParam(r, "accountID")
	positions, err := h.portfolio.Positions(r.Context(), userID, accountID, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"as_of":      at,
		"positions":  positions,
		"count":      len(positions),
	})
}

// RecordPosition handles POST /accounts/{accountID}/positions
func (h *PortfolioHandler) RecordPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req RecordPositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		h.fail(w, r, pkgerrors.NewValidationError("quantity is required"))
		return
	}

	action, err := valueobjects.ParsePositionAction(req.Action)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}
	at, err := utils.ParseOptionalTime(req.Timestamp)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	event, err := h.portfolio.RecordPosition(r.Context(), userID, chi.URLParam(r, "accountID"), req.Symbol, *req.Quantity, action, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, event)
}

// History handles GET /accounts/{accountID}/positions/{symbol}/history?start&end
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	start, err := queryTime(r, "start", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := queryTime(r, "end", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	events, err := h.portfolio.History(r.Context(), userID, chi.URLParam(r, "accountID"), chi.URLParam(r, "symbol"), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Value handles GET /accounts/{accountID}/value?at
func (h *PortfolioHandler) Value(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	at, err := queryTime(r, "at", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	accountID := chi.URLParam(r, "accountID")
	if _, err := h.portfolio.GetAccount(r.Context(), userID, accountID); err != nil {
		h.fail(w, r, err)
		return
	}

	valuation, err := h.valuation.ValueAt(r.Context(), accountID, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, valuation)
}
