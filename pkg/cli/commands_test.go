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

package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

const (
	payloadBefore = `{"groups":[{"make":"Toyota","model":"Corolla","numberOfTrimlines":3}]}`
	payloadAfter  = `{"groups":[{"make":"Toyota","model":"Corolla","numberOfTrimlines":5},{"make":"Honda","model":"Civic","numberOfTrimlines":2}]}`
)

func inventoryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestContext(t *testing.T, mutate func(*Config)) (*CommandContext, *bytes.Buffer) {
	t.Helper()
	cfg := validConfig()
	cfg.InventoryURL = "http://127.0.0.1:1/unused"
	if mutate != nil {
		mutate(cfg)
	}
	var logs bytes.Buffer
	ctx, err := NewCommandContext(cfg, &logs)
	if err != nil {
		t.Fatalf("NewCommandContext() = %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	var out bytes.Buffer
	ctx.Stdout = &out
	return ctx, &out
}

func seed(t *testing.T, ctx *CommandContext, payload string, at time.Time) string {
	t.Helper()
	id, err := ctx.Store.Save(context.Background(), []byte(payload), at)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestNewCommandContextRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Backend = "ftp"
	if _, err := NewCommandContext(cfg, nil); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("NewCommandContext() = %v, want ErrUnsupportedBackend", err)
	}
}

func TestRunCommandFirstRun(t *testing.T) {
	server := inventoryServer(t, http.StatusOK, payloadBefore)
	ctx, out := newTestContext(t, func(c *Config) { c.InventoryURL = server.URL })

	result, err := ctx.RunCommand(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCommand() = %v", err)
	}
	if !result.FirstRun || result.Entries != 1 {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(out.String(), "first snapshot") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCommandReportsChanges(t *testing.T) {
	server := inventoryServer(t, http.StatusOK, payloadAfter)
	ctx, out := newTestContext(t, func(c *Config) { c.InventoryURL = server.URL })
	previous := seed(t, ctx, payloadBefore, time.Now().Add(-time.Hour))

	result, err := ctx.RunCommand(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCommand() = %v", err)
	}
	if result.PreviousID != previous || result.Changes.Len() != 2 || !result.Notified {
		t.Errorf("result = %+v", result)
	}
	output := out.String()
	for _, want := range []string{"• Honda Civic (Trimlines: 2)", "• Toyota Corolla: 3 → 5", "2 change(s) since " + previous} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	families, err := ctx.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "carwatch_cycles_total" {
			found = true
		}
	}
	if !found {
		t.Error("carwatch_cycles_total not registered")
	}
}

func TestRunCommandNotifierSecrets(t *testing.T) {
	server := inventoryServer(t, http.StatusOK, payloadBefore)

	ctx, _ := newTestContext(t, func(c *Config) {
		c.InventoryURL = server.URL
		c.Notifier = NotifierTelegram
	})
	if _, err := ctx.RunCommand(context.Background(), false); !errors.Is(err, ErrBotTokenRequired) {
		t.Errorf("RunCommand() = %v, want ErrBotTokenRequired", err)
	}
	if _, err := ctx.RunCommand(context.Background(), true); err != nil {
		t.Errorf("dry run should not need secrets: %v", err)
	}
}

func TestRunCommandFetchFailure(t *testing.T) {
	server := inventoryServer(t, http.StatusInternalServerError, "down")
	ctx, _ := newTestContext(t, func(c *Config) {
		c.InventoryURL = server.URL
		c.FetchRetries = 0
	})

	_, err := ctx.RunCommand(context.Background(), false)
	var cycleErr *monitor.CycleError
	if !errors.As(err, &cycleErr) || cycleErr.Stage != monitor.StageFetch {
		t.Fatalf("RunCommand() = %v, want fetch-stage CycleError", err)
	}
	if !errors.Is(err, monitor.ErrFetch) {
		t.Errorf("error should wrap ErrFetch: %v", err)
	}
	infos, _ := ctx.Store.List(context.Background())
	if len(infos) != 0 {
		t.Errorf("failed fetch saved %d snapshot(s)", len(infos))
	}
}

func TestListAndShowCommands(t *testing.T) {
	ctx, out := newTestContext(t, nil)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := seed(t, ctx, payloadBefore, base)
	newer := seed(t, ctx, payloadAfter, base.Add(time.Hour))

	if err := ctx.ListCommand(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Found 2 snapshot(s)") {
		t.Errorf("list output = %q", out.String())
	}

	out.Reset()
	if err := ctx.ListCommand(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), older) || !strings.Contains(out.String(), newer) {
		t.Errorf("limited list output = %q", out.String())
	}

	out.Reset()
	if err := ctx.ShowCommand(context.Background(), older, false); err != nil {
		t.Fatal(err)
	}
	if out.String() != payloadBefore+"\n" {
		t.Errorf("raw show = %q", out.String())
	}

	out.Reset()
	if err := ctx.ShowCommand(context.Background(), "latest", true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), newer+" (2 groups)") || !strings.Contains(out.String(), "Honda Civic") {
		t.Errorf("parsed show = %q", out.String())
	}

	if err := ctx.ShowCommand(context.Background(), "notes.txt", false); !errors.Is(err, snapshot.ErrInvalidID) {
		t.Errorf("ShowCommand(bad id) = %v", err)
	}
}

func TestDiffCommands(t *testing.T) {
	ctx, out := newTestContext(t, func(c *Config) { c.OutputFormat = "json" })
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := seed(t, ctx, payloadBefore, base)
	newer := seed(t, ctx, payloadAfter, base.Add(time.Hour))

	cs, err := ctx.DiffCommand(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(cs.Added) != 1 || len(cs.Modified) != 1 || len(cs.Removed) != 0 {
		t.Errorf("changes = %+v", cs)
	}
	if !strings.Contains(out.String(), `"from": "`+older+`"`) || !strings.Contains(out.String(), `"to": "`+newer+`"`) {
		t.Errorf("diff output = %s", out.String())
	}

	cs, err = ctx.DiffCommand(context.Background(), newer, older)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs.Removed) != 1 || cs.Removed[0].Model != "Civic" {
		t.Errorf("reverse changes = %+v", cs)
	}

	out.Reset()
	if err := ctx.RawDiffCommand(context.Background(), older, newer); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"groups"`) || !strings.Contains(out.String(), "Civic") {
		t.Errorf("merge patch = %s", out.String())
	}
}

func TestDiffCommandNeedsTwoSnapshots(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	seed(t, ctx, payloadBefore, time.Now())
	if _, err := ctx.DiffCommand(context.Background(), "", ""); !errors.Is(err, snapshot.ErrNotEnoughSnapshots) {
		t.Errorf("DiffCommand() = %v, want ErrNotEnoughSnapshots", err)
	}
}

func TestNewFollowerRequiresLocal(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	if _, err := ctx.NewFollower(); !errors.Is(err, ErrFollowRequiresLocal) {
		t.Errorf("NewFollower() = %v", err)
	}

	local, _ := newTestContext(t, func(c *Config) {
		c.Backend = BackendLocal
		c.BackendPath = t.TempDir()
	})
	follower, err := local.NewFollower()
	if err != nil {
		t.Fatalf("NewFollower() = %v", err)
	}
	_ = follower.Close()
}

func TestNewAuditLogger(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	logger, err := ctx.NewAuditLogger()
	if err != nil || logger != nil {
		t.Fatalf("disabled audit log = %v, %v", logger, err)
	}

	path := t.TempDir() + "/audit.log"
	ctx.Config.AuditLog = path
	logger, err = ctx.NewAuditLogger()
	if err != nil {
		t.Fatal(err)
	}
	if err := logger.LogAuthFailure(context.Background(), "127.0.0.1", "req-1", "bad token"); err != nil {
		t.Fatal(err)
	}
	_ = ctx.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "AUTH_FAILURE") {
		t.Errorf("audit log = %s", data)
	}
}
