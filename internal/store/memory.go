package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

type observationKey struct {
	entityID uint
	period   int
}

type recordKey struct {
	period  int
	version string
}

// MemoryStore keeps everything in maps keyed by id.
type MemoryStore struct {
	mu           sync.RWMutex
	teams        map[uint]models.Team
	entities     map[uint]models.Entity
	periods      map[int]models.Period
	observations map[observationKey]models.ObservationRecord
	fixtures     map[uint]models.Fixture
	groundTruth  map[int][]models.GroundTruthEntry
	predictions  map[uuid.UUID]*models.Prediction
	records      map[recordKey]models.BacktestRecord
	nextRecordID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:        make(map[uint]models.Team),
		entities:     make(map[uint]models.Entity),
		periods:      make(map[int]models.Period),
		observations: make(map[observationKey]models.ObservationRecord),
		fixtures:     make(map[uint]models.Fixture),
		groundTruth:  make(map[int][]models.GroundTruthEntry),
		predictions:  make(map[uuid.UUID]*models.Prediction),
		records:      make(map[recordKey]models.BacktestRecord),
	}
}

func (s *MemoryStore) Entities(ctx context.Context) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Teams(ctx context.Context) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Periods(ctx context.Context) ([]models.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Period, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Period(ctx context.Context, id int) (*models.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.periods[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ObservationsBefore(ctx context.Context, period int) ([]models.ObservationRecord, error) {
	return s.observationsWhere(func(p int) bool { return p < period }), nil
}

func (s *MemoryStore) Observations(ctx context.Context, period int) ([]models.ObservationRecord, error) {
	return s.observationsWhere(func(p int) bool { return p == period }), nil
}

func (s *MemoryStore) observationsWhere(keep func(period int) bool) []models.ObservationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ObservationRecord
	for k, o := range s.observations {
		if keep(k.period) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func (s *MemoryStore) FixturesThrough(ctx context.Context, period int) ([]models.Fixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Fixture
	for _, f := range s.fixtures {
		if f.Period <= period {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GroundTruth(ctx context.Context, period int) ([]models.GroundTruthEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.GroundTruthEntry(nil), s.groundTruth[period]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (s *MemoryStore) FindPrediction(ctx context.Context, period int, modelVersion string) (*models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Prediction
	for _, p := range s.predictions {
		if p.Period != period || p.ModelVersion != modelVersion {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return clonePrediction(found), nil
}

func (s *MemoryStore) Prediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrediction(p), nil
}

func (s *MemoryStore) SavePrediction(ctx context.Context, p *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	for i := range p.Entries {
		p.Entries[i].PredictionID = p.ID
	}
	s.predictions[p.ID] = clonePrediction(p)
	return nil
}

func (s *MemoryStore) DeletePrediction(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.predictions, id)
	for k, r := range s.records {
		if r.PredictionID == id {
			delete(s.records, k)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertBacktestRecord(ctx context.Context, r *models.BacktestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := recordKey{period: r.Period, version: r.ModelVersion}
	if existing, ok := s.records[key]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		s.nextRecordID++
		r.ID = s.nextRecordID
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.records[key] = *r
	return nil
}

func (s *MemoryStore) BacktestRecords(ctx context.Context, modelVersion string) ([]models.BacktestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BacktestRecord
	for _, r := range s.records {
		if modelVersion == "" || r.ModelVersion == modelVersion {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateExpectedStats(ctx context.Context, updates []models.ExpectedStatsUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := 0
	for _, u := range updates {
		key := observationKey{entityID: u.EntityID, period: u.Period}
		o, ok := s.observations[key]
		if !ok {
			continue
		}
		xg, xa := u.ExpectedGoals, u.ExpectedAssists
		o.ExpectedGoals, o.ExpectedAssists = &xg, &xa
		s.observations[key] = o
		matched++
	}
	return matched, nil
}

func (s *MemoryStore) Load(ctx context.Context, ds *Dataset) error {
	s.mu.Lock()
	for _, t := range ds.Teams {
		s.teams[t.ID] = t
	}
	for _, e := range ds.Entities {
		s.entities[e.ID] = e
	}
	for _, p := range ds.Periods {
		s.periods[p.ID] = p
	}
	for _, o := range ds.Observations {
		s.observations[observationKey{entityID: o.EntityID, period: o.Period}] = o
	}
	for _, f := range ds.Fixtures {
		s.fixtures[f.ID] = f
	}
	for _, g := range ds.GroundTruth {
		entries := s.groundTruth[g.Period]
		replaced := false
		for i := range entries {
			if entries[i].EntityID == g.EntityID {
				entries[i] = g
				replaced = true
			}
		}
		if !replaced {
			entries = append(entries, g)
		}
		s.groundTruth[g.Period] = entries
	}
	s.mu.Unlock()

	if len(ds.ExpectedStats) > 0 {
		if _, err := s.UpdateExpectedStats(ctx, ds.ExpectedStats); err != nil {
			return err
		}
	}
	return nil
}

func clonePrediction(p *models.Prediction) *models.Prediction {
	c := *p
	c.Entries = append([]models.PredictionEntry(nil), p.Entries...)
	c.TrainingMetrics = append([]byte(nil), p.TrainingMetrics...)
	return &c
}
