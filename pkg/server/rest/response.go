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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/carwatch/pkg/common"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Latest  string `json:"latest_snapshot,omitempty"`
}

// ListSnapshotsResponse lists stored snapshots, most recent first.
type ListSnapshotsResponse struct {
	Snapshots []snapshot.Info `json:"snapshots"`
	Count     int             `json:"count"`
	Ranking   string          `json:"ranking"`
}

// DiffSummary counts the changes per category.
type DiffSummary struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
}

// DiffResponse is the changeset between two snapshots.
type DiffResponse struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Summary DiffSummary      `json:"summary"`
	Changes differ.Changeset `json:"changes"`
}

func newDiffResponse(from, to string, cs differ.Changeset) DiffResponse {
	return DiffResponse{
		From: from,
		To:   to,
		Summary: DiffSummary{
			Added:    len(cs.Added),
			Modified: len(cs.Modified),
			Removed:  len(cs.Removed),
		},
		Changes: cs,
	}
}

// RespondWithError sends a standard error response
func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// handleStoreError maps store errors to HTTP responses without leaking
// backend details.
func handleStoreError(c *gin.Context, err error) {
	var validationErr *common.ValidationError
	switch {
	case errors.Is(err, snapshot.ErrInvalidID), errors.As(err, &validationErr):
		RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrKeyNotFound):
		RespondWithError(c, http.StatusNotFound, "snapshot not found")
	case errors.Is(err, snapshot.ErrNotEnoughSnapshots):
		RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		RespondWithError(c, http.StatusUnprocessableEntity, "snapshot is corrupt")
	default:
		RespondWithError(c, http.StatusInternalServerError, common.SanitizeErrorMessage(err))
	}
}
