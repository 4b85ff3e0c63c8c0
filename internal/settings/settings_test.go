package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	settings *types.GlobalSettings
	getErr   error
	saveErr  error
	block    bool
	saves    int
}

func (m *memStore) GetSettings(ctx context.Context) (*types.GlobalSettings, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.settings == nil {
		return nil, nil
	}
	cp := *m.settings
	return &cp, nil
}

func (m *memStore) SaveSettings(ctx context.Context, s *types.GlobalSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *s
	m.settings = &cp
	m.saves++
	return nil
}

func TestCalculateNextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		berlin = time.FixedZone("CET", 3600)
	}
	now := time.Date(2025, 1, 31, 15, 4, 5, 999, berlin)

	tests := []struct {
		name     string
		interval types.ScanInterval
		want     *time.Time
	}{
		{"disabled", types.IntervalDisabled, nil},
		{"unknown", "hourly", nil},
		{"daily", types.IntervalDaily, ptr(time.Date(2025, 2, 1, 2, 0, 0, 0, berlin))},
		{"weekly", types.IntervalWeekly, ptr(time.Date(2025, 2, 7, 2, 0, 0, 0, berlin))},
		{"monthly", types.IntervalMonthly, ptr(time.Date(2025, 2, 1, 2, 0, 0, 0, berlin))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateNextRun(tt.interval, now)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s want %s", got, tt.want)
			assert.Equal(t, berlin, got.Location())
		})
	}
}

func TestCalculateNextRunMonthlyRollsOverYear(t *testing.T) {
	now := time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC)
	got := CalculateNextRun(types.IntervalMonthly, now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC), *got)
}

func TestCalculateNextRunDailyIsNextCalendarDayAtTwo(t *testing.T) {
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	got := CalculateNextRun(types.IntervalDaily, now)
	require.NotNil(t, got)
	assert.Equal(t, 24*time.Hour, got.Sub(now))
}

func ptr(t time.Time) *time.Time { return &t }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGetCreatesDefaultsLazily(t *testing.T) {
	store := &memStore{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, zerolog.Nop(), WithClock(fixedClock(now)))

	got := svc.Get(context.Background())
	assert.True(t, got.UseAIMerge)
	assert.False(t, got.AutoScan.Enabled)
	assert.Equal(t, types.IntervalDisabled, got.AutoScan.Interval)
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.settings)
	assert.Equal(t, now, store.settings.UpdatedAt)

	// second read does not rewrite
	svc.Get(context.Background())
	assert.Equal(t, 1, store.saves)
}

func TestGetFailsOpen(t *testing.T) {
	rec := &events.Recorder{}
	svc := NewService(&memStore{getErr: errors.New("unavailable")}, rec, zerolog.Nop())
	got := svc.Get(context.Background())
	assert.Equal(t, Defaults(), got)
	assert.Len(t, rec.OfType(events.EventTypeSettingsFallback), 1)
}

func TestGetDoesNotBlockOnSlowStore(t *testing.T) {
	svc := NewService(&memStore{block: true}, nil, zerolog.Nop(), WithLoadTimeout(20*time.Millisecond))
	done := make(chan types.GlobalSettings, 1)
	go func() { done <- svc.Get(context.Background()) }()
	select {
	case got := <-done:
		assert.Equal(t, Defaults(), got)
	case <-time.After(2 * time.Second):
		t.Fatal("Get blocked on a slow store")
	}
}

func TestGetSurvivesSaveFailure(t *testing.T) {
	svc := NewService(&memStore{saveErr: errors.New("read-only")}, nil, zerolog.Nop())
	got := svc.Get(context.Background())
	assert.True(t, got.UseAIMerge)
}

func TestUpdate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{}
	rec := &events.Recorder{}
	svc := NewService(store, rec, zerolog.Nop(), WithClock(fixedClock(now)))
	ctx := context.Background()

	weekly := types.IntervalWeekly
	got, err := svc.Update(ctx, Update{Interval: &weekly}, "ops@example.com")
	require.NoError(t, err)
	assert.True(t, got.AutoScan.Enabled)
	require.NotNil(t, got.AutoScan.NextRun)
	assert.Equal(t, time.Date(2025, 6, 8, 2, 0, 0, 0, time.UTC), *got.AutoScan.NextRun)
	assert.Equal(t, "ops@example.com", got.UpdatedBy)
	assert.Equal(t, now, got.UpdatedAt)
	assert.True(t, got.UseAIMerge)

	off := false
	got, err = svc.Update(ctx, Update{UseAIMerge: &off}, "other")
	require.NoError(t, err)
	assert.False(t, got.UseAIMerge)
	assert.Equal(t, types.IntervalWeekly, got.AutoScan.Interval)
	assert.NotNil(t, got.AutoScan.NextRun)
	assert.Equal(t, "other", store.settings.UpdatedBy)

	disabled := types.IntervalDisabled
	got, err = svc.Update(ctx, Update{Interval: &disabled}, "other")
	require.NoError(t, err)
	assert.False(t, got.AutoScan.Enabled)
	assert.Nil(t, got.AutoScan.NextRun)

	assert.Len(t, rec.OfType(events.EventTypeSettingsUpdated), 3)
}

func TestUpdateRejectsInvalidInterval(t *testing.T) {
	svc := NewService(&memStore{}, nil, zerolog.Nop())
	bad := types.ScanInterval("hourly")
	_, err := svc.Update(context.Background(), Update{Interval: &bad}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auto-scan interval")
}

func TestUpdatePropagatesStoreErrors(t *testing.T) {
	svc := NewService(&memStore{getErr: errors.New("down")}, nil, zerolog.Nop())
	on := true
	_, err := svc.Update(context.Background(), Update{UseAIMerge: &on}, "x")
	require.Error(t, err)
}

func TestRecordRunAndDue(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{}
	svc := NewService(store, nil, zerolog.Nop(), WithClock(fixedClock(start)))
	ctx := context.Background()

	daily := types.IntervalDaily
	_, err := svc.Update(ctx, Update{Interval: &daily}, "ops")
	require.NoError(t, err)

	st := svc.Get(ctx)
	assert.False(t, Due(st, start))
	assert.True(t, Due(st, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)))

	ran := time.Date(2025, 6, 2, 2, 0, 5, 0, time.UTC)
	require.NoError(t, svc.RecordRun(ctx, ran))
	st = svc.Get(ctx)
	require.NotNil(t, st.AutoScan.LastRun)
	assert.Equal(t, ran, *st.AutoScan.LastRun)
	assert.Equal(t, time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC), *st.AutoScan.NextRun)
	assert.False(t, Due(st, ran))

	assert.False(t, Due(Defaults(), ran))
}
