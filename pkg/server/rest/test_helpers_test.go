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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/carwatch/pkg/memory"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

const (
	corolla3 = `{"groups":[{"make":"Toyota","model":"Corolla","numberOfTrimlines":3}]}`
	corolla5 = `{"groups":[{"make":"Toyota","model":"Corolla","numberOfTrimlines":5},{"make":"Honda","model":"Civic","numberOfTrimlines":2}]}`
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type stubRunner struct {
	result *monitor.CycleResult
	err    error
	calls  int
}

func (r *stubRunner) RunCycle(ctx context.Context) (*monitor.CycleResult, error) {
	r.calls++
	return r.result, r.err
}

func newTestStore(t *testing.T, payloads ...string) (*snapshot.Store, []string) {
	t.Helper()
	next := base
	backend := memory.New(memory.WithClock(func() time.Time {
		now := next
		next = next.Add(time.Minute)
		return now
	}))
	store, err := snapshot.New(backend, snapshot.WithLocation(time.UTC))
	require.NoError(t, err)

	ids := make([]string, 0, len(payloads))
	for i, p := range payloads {
		id, err := store.Save(context.Background(), []byte(p), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return store, ids
}

func newTestServer(t *testing.T, store *snapshot.Store, runner CycleRunner, mutate func(*ServerConfig)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := DefaultServerConfig()
	config.Mode = gin.TestMode
	if mutate != nil {
		mutate(config)
	}
	server, err := NewServer(store, runner, config)
	require.NoError(t, err)
	return server
}

func do(server *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}
