package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/pkg/common"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// InstrumentHandler serves the instrument catalog and price series
type InstrumentHandler struct {
	base
	prices *services.PriceService
	logger *zap.Logger
	clock  func() time.Time
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(prices *services.PriceService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *InstrumentHandler {
	return &InstrumentHandler{
		base:   base{errors: errorHandler},
		prices: prices,
		logger: logger,
		clock:  time.Now,
	}
}

// RecordPriceRequest is the body of POST /instruments/{symbol}/prices
type RecordPriceRequest struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp,omitempty"`
	Volume    *int64          `json:"volume,omitempty" validate:"omitempty,min=0"`
}

// ListInstruments handles GET /instruments
func (h *InstrumentHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.prices.ListInstruments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// GetInstrument handles GET /instruments/{symbol}
func (h *InstrumentHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	instrument, err := h.prices.GetInstrument(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, instrument)
}

// PriceHistory handles GET /instruments/{symbol}/prices?start&end. The
// window defaults to the last 30 days.
func (h *InstrumentHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
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

	now := h.clock().UTC()
	if end == nil {
		end = &now
	}
	if start == nil {
		from := end.AddDate(0, 0, -30)
		start = &from
	}

	points, err := h.prices.PriceHistory(r.Context(), chi.URLParam(r, "symbol"), *start, *end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": chi.URLParam(r, "symbol"),
		"start":  start,
		"end":    end,
		"prices": points,
	})
}

// PriceAt handles GET /instruments/{symbol}/price?at
func (h *InstrumentHandler) PriceAt(w http.ResponseWriter, r *http.Request) {
	at, err := queryTime(r, "at", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if at == nil {
		now := h.clock().UTC()
		at = &now
	}

	point, err := h.prices.PriceAt(r.Context(), chi.URLParam(r, "symbol"), *at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, point)
}

// RecordPrice handles POST /instruments/{symbol}/prices
func (h *InstrumentHandler) RecordPrice(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}

	var req RecordPriceRequest
	if !h.decode(w, r, &req) {
		return
	}

	at := h.clock().UTC()
	if req.Timestamp != "" {
		parsed, err := utils.ParseTime(req.Timestamp)
		if err != nil {
			h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
			return
		}
		at = parsed
	}

	point, err := h.prices.RecordPrice(r.Context(), chi.URLParam(r, "symbol"), req.Price, at, req.Volume)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, point)
}
