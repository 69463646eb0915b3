// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/server"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
	"github.com/jeremyhahn/carwatch/pkg/version"
)

// CycleRunner runs a monitor cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*monitor.CycleResult, error)
}

// Handler serves the REST API.
type Handler struct {
	store  *snapshot.Store
	runner CycleRunner
	logger adapters.Logger
}

// NewHandler creates a Handler. runner may be nil, in which case the cycle
// endpoint answers 503.
func NewHandler(store *snapshot.Store, runner CycleRunner, logger adapters.Logger) *Handler {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &Handler{store: store, runner: runner, logger: logger}
}

// HealthCheck reports liveness and the most recent snapshot.
func (h *Handler) HealthCheck(c *gin.Context) {
	latest, err := h.store.MostRecent(c.Request.Context(), "")
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Health check could not list snapshots",
			adapters.Field{Key: "error", Value: err.Error()})
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Version: version.Get()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: version.Get(), Latest: latest})
}

// ListSnapshots lists stored snapshots, most recent first. ?limit=n caps
// the result at n, or at server.MaxListLimit.
func (h *Handler) ListSnapshots(c *gin.Context) {
	infos, err := h.store.List(c.Request.Context())
	if err != nil {
		handleStoreError(c, err)
		return
	}
	if limit, ok := parseLimit(c.Query("limit")); !ok {
		RespondWithError(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	} else if len(infos) > limit {
		infos = infos[:limit]
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{
		Snapshots: infos,
		Count:     len(infos),
		Ranking:   h.store.Ranking().String(),
	})
}

// GetSnapshot returns the stored payload verbatim, or the parsed catalog
// with ?parsed=true.
func (h *Handler) GetSnapshot(c *gin.Context) {
	id := c.Param("id")
	if len(id) > server.MaxSnapshotIDLength {
		RespondWithError(c, http.StatusBadRequest, "snapshot id too long")
		return
	}
	if c.Query("parsed") == "true" {
		snap, err := h.store.Load(c.Request.Context(), id)
		if err != nil {
			handleStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	raw, err := h.store.LoadRaw(c.Request.Context(), id)
	if err != nil {
		handleStoreError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// Diff compares two snapshots. Both ids are optional, see
// snapshot.Store.ResolvePair.
func (h *Handler) Diff(c *gin.Context) {
	ctx := c.Request.Context()
	from, to, err := h.store.ResolvePair(ctx, c.Query("from"), c.Query("to"))
	if err != nil {
		handleStoreError(c, err)
		return
	}
	previous, err := h.store.Load(ctx, from)
	if err != nil {
		handleStoreError(c, err)
		return
	}
	current, err := h.store.Load(ctx, to)
	if err != nil {
		handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDiffResponse(from, to, differ.Compare(previous, current)))
}

// TriggerCycle runs one monitor cycle and returns its result.
func (h *Handler) TriggerCycle(c *gin.Context) {
	if h.runner == nil {
		RespondWithError(c, http.StatusServiceUnavailable, "cycles are not enabled on this server")
		return
	}
	result, err := h.runner.RunCycle(c.Request.Context())
	if err != nil {
		var cycleErr *monitor.CycleError
		code := http.StatusInternalServerError
		if errors.As(err, &cycleErr) && cycleErr.Stage == monitor.StageFetch {
			code = http.StatusBadGateway
		}
		RespondWithError(c, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}
