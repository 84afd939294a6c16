package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearFromDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025", YearFromDate("Sunday, 14th December 2025", now))
	assert.Equal(t, "2026", YearFromDate("", now))
	assert.Equal(t, "2026", YearFromDate("December TBA", now))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXAM_YEAR", "")
	t.Setenv("LEDGER_BACKEND", "MEMORY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, "2025", cfg.Exam.Year)
	assert.Equal(t, int64(1284), cfg.Exam.SeatBaseline)
	assert.Equal(t, []string{"SCC2025", "TEACHER1", "EARLYBIRD", "TOPPER"}, cfg.Exam.PromoCodes)
	assert.Equal(t, 30*time.Second, cfg.Drafts.AutosaveInterval)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}

func TestLoadRejectsPrefixInCacheNamespace(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", BackendRedis)

	for _, prefix := range []string{"cache", "ledger:cache", "sc*", "scc[1]"} {
		t.Setenv("LEDGER_KEY_PREFIX", prefix)
		_, err := Load()
		assert.Error(t, err, prefix)
	}

	for _, prefix := range []string{"ledger", "scc:2025", "cached"} {
		t.Setenv("LEDGER_KEY_PREFIX", prefix)
		cfg, err := Load()
		require.NoError(t, err, prefix)
		assert.Equal(t, prefix, cfg.Ledger.KeyPrefix)
	}
}

func TestLoadRejectsLedgerDirInsideExportsDir(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", BackendFile)
	t.Setenv("EXPORTS_STORAGE_DIR", "./shared")

	for _, dir := range []string{"./shared", "shared/", "./shared/ledger"} {
		t.Setenv("LEDGER_DATA_DIR", dir)
		_, err := Load()
		assert.ErrorContains(t, err, "LEDGER_DATA_DIR", dir)
	}

	for _, dir := range []string{"./data", "./shared-ledger", "."} {
		t.Setenv("LEDGER_DATA_DIR", dir)
		_, err := Load()
		assert.NoError(t, err, dir)
	}

	t.Setenv("LEDGER_BACKEND", BackendMemory)
	t.Setenv("LEDGER_DATA_DIR", "./shared")
	_, err := Load()
	assert.NoError(t, err)
}
