package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/pkg/common"
)

// readyTimeout bounds the table status checks of /ready
const readyTimeout = 3 * time.Second

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	tables []abstractions.Table
	logger *zap.Logger
}

// NewHealthHandler creates a health handler probing the given tables
func NewHealthHandler(tables []abstractions.Table, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{tables: tables, logger: logger}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready. Every table must report ACTIVE.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var mu sync.Mutex
	statuses := make(map[string]string, len(h.tables))
	ready := true

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range h.tables {
		table := table
		g.Go(func() error {
			name := table.Schema().Name
			status, err := table.Status(gctx)
			if err != nil {
				h.logger.Warn("Table status check failed", zap.String("table", name), zap.Error(err))
				status = "UNREACHABLE"
			}
			mu.Lock()
			defer mu.Unlock()
			statuses[name] = status
			if status != abstractions.TableStatusActive {
				ready = false
			}
			return nil
		})
	}
	_ = g.Wait()

	code := http.StatusOK
	state := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		state = "not_ready"
	}
	common.RespondJSON(w, code, map[string]interface{}{
		"status": state,
		"tables": statuses,
	})
}
