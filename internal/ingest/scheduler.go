package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/metrics"
	"github.com/frostbyte/frostrisk/internal/store"
)

// Scheduler keeps the local observation store current: it refreshes the
// running day for every active station on a fixed interval and closes out
// the previous day once upstream QC has settled.
type Scheduler struct {
	store       *store.Store
	cimis       *CIMIS
	clock       clockwork.Clock
	loc         *time.Location
	obsInterval time.Duration
	log         *zap.Logger

	lastCloseOut string // local date already closed out
}

func NewScheduler(store *store.Store, cimis *CIMIS, clock clockwork.Clock, loc *time.Location, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		cimis:       cimis,
		clock:       clock,
		loc:         loc,
		obsInterval: 10 * time.Minute,
		log:         log,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.refreshCurrentDay(ctx)
	s.closeOutIfNeeded(ctx)

	obsTicker := s.clock.NewTicker(s.obsInterval)
	dailyTicker := s.clock.NewTicker(1 * time.Hour)
	defer obsTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutting down")
			return
		case <-obsTicker.Chan():
			s.refreshCurrentDay(ctx)
		case <-dailyTicker.Chan():
			s.closeOutIfNeeded(ctx)
		}
	}
}

func (s *Scheduler) refreshCurrentDay(ctx context.Context) {
	today := s.clock.Now().In(s.loc)
	s.ingestDay(ctx, today)
}

// closeOutIfNeeded finalizes yesterday's daily summaries in the early
// morning, after the last hourly records have landed upstream.
func (s *Scheduler) closeOutIfNeeded(ctx context.Context) {
	now := s.clock.Now().In(s.loc)
	if now.Hour() < 1 || now.Hour() >= 3 {
		return
	}

	yesterday := now.AddDate(0, 0, -1)
	dateStr := yesterday.Format("2006-01-02")
	if s.lastCloseOut == dateStr {
		return
	}

	s.ingestDay(ctx, yesterday)
	s.lastCloseOut = dateStr
}

func (s *Scheduler) ingestDay(ctx context.Context, date time.Time) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		s.log.Error("list active stations", zap.Error(err))
		return
	}

	for _, st := range stations {
		if ctx.Err() != nil {
			return
		}
		if err := s.IngestStationDay(ctx, st.StationID, date); err != nil {
			s.log.Warn("ingest station day",
				zap.String("station", st.StationID),
				zap.String("date", date.Format("2006-01-02")),
				zap.Error(err))
		}
	}
}

// IngestStationDay fetches and persists one station's hourly records for a
// date, then refreshes the stored daily summary when the day has enough data.
func (s *Scheduler) IngestStationDay(ctx context.Context, stationID string, date time.Time) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	observations, _, err := s.cimis.FetchHourly(fetchCtx, stationID, date)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	n, err := s.store.InsertObservations(observations)
	if err != nil {
		return err
	}
	metrics.ObservationsIngested.WithLabelValues(stationID).Add(float64(n))
	s.log.Debug("ingested observations",
		zap.String("station", stationID),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("count", n))

	summary, _, err := frost.BuildDay(date, observations)
	if err != nil {
		if errors.Is(err, frost.ErrInsufficientData) {
			// Early in the day; the summary catches up on a later refresh.
			return nil
		}
		return err
	}
	return s.store.UpsertDailySummary(summary)
}

// Backfill loads the trailing n days for every active station, oldest first,
// so assessments for recent history work immediately after a fresh start.
func (s *Scheduler) Backfill(ctx context.Context, days int) error {
	now := s.clock.Now().In(s.loc)
	stations, err := s.store.GetActiveStations()
	if err != nil {
		return err
	}

	for d := days; d >= 1; d-- {
		date := now.AddDate(0, 0, -d)
		for _, st := range stations {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.IngestStationDay(ctx, st.StationID, date); err != nil {
				s.log.Warn("backfill station day",
					zap.String("station", st.StationID),
					zap.String("date", date.Format("2006-01-02")),
					zap.Error(err))
			}
		}
	}
	return nil
}
