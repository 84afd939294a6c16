package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved map[string]models.Draft
	err   error
}

func (r *recordingSaver) Save(ctx context.Context, session string, draft models.Draft) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.saved == nil {
		r.saved = map[string]models.Draft{}
	}
	r.saved[session] = draft
	return &draft, nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func newDraftService() *DraftService {
	return NewDraftService(repository.NewDraftRepository(repository.NewMemoryStore(), repository.Keys{}), nil)
}

func TestDraftSaveLoadClear(t *testing.T) {
	svc := newDraftService()
	ctx := context.Background()

	none, err := svc.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	saved, err := svc.Save(ctx, "device-1", models.Draft{FullName: "Asha", Mobile: "98765 43210"})
	require.NoError(t, err)
	assert.False(t, saved.SavedAt.IsZero())

	_, err = svc.Save(ctx, "device-1", models.Draft{FullName: "Asha Patil"})
	require.NoError(t, err)

	loaded, err := svc.Load(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Asha Patil", loaded.FullName)
	assert.Empty(t, loaded.Mobile)

	other, err := svc.Load(ctx, "device-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, svc.Clear(ctx, "device-1"))
	require.NoError(t, svc.Clear(ctx, "device-1"))
	gone, err := svc.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDraftRejectsBadSession(t *testing.T) {
	svc := newDraftService()
	for _, session := range []string{"", "   ", "../etc", "a/b"} {
		_, err := svc.Save(context.Background(), session, models.Draft{FullName: "x"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation), session)
	}
}

func TestAutosaverFlushSkipsBlankNames(t *testing.T) {
	saver := &recordingSaver{}
	metrics := NewMetricsService()
	a := NewAutosaver(saver, time.Hour, metrics, nil)

	a.Stage("s1", models.Draft{FullName: "Asha"})
	a.Stage("s2", models.Draft{FullName: "   ", Mobile: "98765"})
	a.Flush(context.Background())

	assert.Equal(t, 1, saver.count())
	assert.Contains(t, saver.saved, "s1")
	assert.Equal(t, 0, a.Pending())
}

func TestAutosaverKeepsLatestStage(t *testing.T) {
	saver := &recordingSaver{}
	a := NewAutosaver(saver, time.Hour, nil, nil)

	a.Stage("s1", models.Draft{FullName: "A"})
	a.Stage("s1", models.Draft{FullName: "Asha"})
	a.Flush(context.Background())

	assert.Equal(t, "Asha", saver.saved["s1"].FullName)
}

func TestAutosaverCancel(t *testing.T) {
	saver := &recordingSaver{}
	a := NewAutosaver(saver, time.Hour, nil, nil)

	a.Stage("s1", models.Draft{FullName: "Asha"})
	a.Cancel("s1")
	a.Flush(context.Background())

	assert.Equal(t, 0, saver.count())
}

func TestAutosaverFailureIsNotRetried(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	a := NewAutosaver(saver, time.Hour, nil, nil)

	a.Stage("s1", models.Draft{FullName: "Asha"})
	a.Flush(context.Background())
	assert.Equal(t, 0, a.Pending())

	saver.err = nil
	a.Flush(context.Background())
	assert.Equal(t, 0, saver.count())
}

func TestAutosaverTicks(t *testing.T) {
	saver := &recordingSaver{}
	a := NewAutosaver(saver, 10*time.Millisecond, nil, nil)
	a.Start(context.Background())
	a.Start(context.Background())
	defer a.Stop()

	a.Stage("s1", models.Draft{FullName: "Asha"})
	assert.Eventually(t, func() bool { return saver.count() == 1 }, time.Second, 5*time.Millisecond)

	a.Stop()
	a.Stop()
	a.Stage("s2", models.Draft{FullName: "Rahul"})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, saver.count())
}
