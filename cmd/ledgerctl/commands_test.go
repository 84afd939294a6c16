package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/internal/service"
	"github.com/noah-isme/scc-sat-api/pkg/config"
)

func newTestCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	store := repository.NewMemoryStore()
	keys := repository.Keys{Prefix: "scc"}
	ledger := service.NewLedgerService(repository.NewLedgerRepository(store, keys), nil, nil, nil)
	require.NoError(t, ledger.Load(context.Background()))

	for _, r := range []models.StudentRecord{
		{FullName: "Asha Patil", Mobile: "98765 43210", SeatNumber: "SCC-2025-1285", OwnReferralCode: "REF-ASH4821", Location: models.CenterSatpur, CreatedAt: time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)},
		{FullName: "Rahul More", Mobile: "91234 56789", SeatNumber: "SCC-2025-1286", OwnReferralCode: "REF-RAH1234", ReferralCode: "REF-ASH4821", Location: models.CenterMeri, CreatedAt: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)},
	} {
		_, err := ledger.Insert(context.Background(), r)
		require.NoError(t, err)
	}

	out := &bytes.Buffer{}
	return &cli{
		ledger:   ledger,
		seats:    service.NewSequenceService(repository.NewSeatCounterRepository(store, keys), service.DefaultSeatBaseline, nil, nil),
		exporter: service.NewExportService(ledger, nil, nil, service.ExportConfig{}, nil, nil, nil),
		year:     "2025",
		backend:  config.BackendFile,
		out:      out,
	}, out
}

func TestListCommand(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, c.run(context.Background(), "list", []string{"-sort", "fullName", "-order", "desc"}))
	text := out.String()
	assert.Less(t, strings.Index(text, "Rahul More"), strings.Index(text, "Asha Patil"))
	assert.Contains(t, text, "2 registration(s)")

	out.Reset()
	require.NoError(t, c.run(context.Background(), "list", []string{"rahul"}))
	assert.NotContains(t, out.String(), "SCC-2025-1285")
	assert.Contains(t, out.String(), "Asha Patil")

	assert.Error(t, c.run(context.Background(), "list", []string{"-sort", "password"}))
	assert.Error(t, c.run(context.Background(), "list", []string{"-attendance", "Asleep"}))
}

func TestStatsAndAttendanceCommands(t *testing.T) {
	c, out := newTestCLI(t)

	assert.ErrorContains(t, c.run(context.Background(), "attendance", []string{"SCC-2025-1285", "Present"}), "-offline")
	rec, _ := c.ledger.Get("SCC-2025-1285")
	assert.Equal(t, models.AttendancePending, rec.Attendance)

	require.NoError(t, c.run(context.Background(), "attendance", []string{"-offline", "SCC-2025-1285", "Present"}))
	assert.Contains(t, out.String(), "SCC-2025-1285 marked Present")

	out.Reset()
	require.NoError(t, c.run(context.Background(), "attendance", []string{"-offline", "SCC-2025-0001", "Late"}))
	assert.Contains(t, out.String(), "no registration with seat SCC-2025-0001")

	assert.Error(t, c.run(context.Background(), "attendance", []string{"-offline", "SCC-2025-1285", "Asleep"}))
	assert.Error(t, c.run(context.Background(), "attendance", []string{"-offline", "SCC-2025-1285"}))

	out.Reset()
	require.NoError(t, c.run(context.Background(), "stats", nil))
	assert.Contains(t, out.String(), "Referred registrations: 1")
	assert.Contains(t, out.String(), "Satpur")
}

func TestSeatCommand(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, c.run(context.Background(), "seat", nil))
	require.NoError(t, c.run(context.Background(), "seat", []string{"-year", "2026"}))
	assert.Equal(t, "SCC-2025-1285\nSCC-2026-1285\n", out.String())

	assert.Error(t, c.run(context.Background(), "seat", []string{"-year", "26"}))

	c.backend = config.BackendMemory
	out.Reset()
	assert.ErrorContains(t, c.run(context.Background(), "seat", nil), "shared backend")
	assert.Empty(t, out.String())
}

func TestExportCommand(t *testing.T) {
	c, out := newTestCLI(t)
	path := filepath.Join(t.TempDir(), "ledger.csv")

	require.NoError(t, c.run(context.Background(), "export", []string{"-sort", "seatNumber", "-order", "desc", path}))
	assert.Contains(t, out.String(), "wrote 2 row(s)")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "SCC-2025-1286,Rahul More"))
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newTestCLI(t)
	assert.ErrorContains(t, c.run(context.Background(), "frobnicate", nil), "unknown command")
}
