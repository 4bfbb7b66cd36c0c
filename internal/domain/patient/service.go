package patient

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pms/pms/internal/platform/events"
	"github.com/pms/pms/internal/platform/middleware"
)

var SortFields = []string{"height", "weight", "bmi"}

var sortKeys = map[string]func(*Patient) float64{
	"height": func(p *Patient) float64 { return p.Height },
	"weight": func(p *Patient) float64 { return p.Weight },
	"bmi":    func(p *Patient) float64 { return p.BMI },
}

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Service runs every operation as load, mutate in memory, save. mu makes
// this process the single writer of the store; other processes sharing the
// same store are not coordinated with.
type Service struct {
	mu     sync.Mutex
	store  Store
	events events.Publisher
	logger zerolog.Logger
}

func NewService(store Store, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{store: store, events: publisher, logger: logger}
}

func (s *Service) List(ctx context.Context) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	c, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Sort returns every patient ordered by field. Ties keep collection order in
// both directions; desc inverts the comparison rather than the result.
func (s *Service) Sort(ctx context.Context, field, order string) ([]*Patient, error) {
	key, ok := sortKeys[field]
	if !ok {
		return nil, ErrInvalidSortField
	}
	if order == "" {
		order = OrderAsc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, ErrInvalidSortOrder
	}

	c, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := c.Values()
	desc := order == OrderDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return key(out[i]) > key(out[j])
		}
		return key(out[i]) < key(out[j])
	})
	return out, nil
}

// Create validates p, derives its fields and appends it to the collection.
func (s *Service) Create(ctx context.Context, p Patient) (*Patient, error) {
	p.Derive()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.mutate(ctx, func(c *Collection) error {
		if _, exists := c.Get(p.ID); exists {
			return ErrConflict
		}
		c.Put(&p)
		return nil
	}, func() {
		s.publish(ctx, events.TypePatientCreated, p.ID, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update merges u onto the stored record and validates the merged whole.
// A rejected merge leaves the store untouched.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Patient, error) {
	var merged Patient
	err := s.mutate(ctx, func(c *Collection) error {
		existing, ok := c.Get(id)
		if !ok {
			return ErrNotFound
		}
		m, err := u.Merge(*existing)
		if err != nil {
			return err
		}
		merged = m
		c.Put(&merged)
		return nil
	}, func() {
		s.publish(ctx, events.TypePatientUpdated, id, &merged)
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(c *Collection) error {
		if !c.Delete(id) {
			return ErrNotFound
		}
		return nil
	}, func() {
		s.publish(ctx, events.TypePatientDeleted, id, nil)
	})
}

// Problem is a stored record that no longer passes validation.
type Problem struct {
	ID  string
	Err error
}

// Verify loads the collection and validates every record without changing
// anything. It returns the record count and the records that fail.
func (s *Service) Verify(ctx context.Context) (int, []Problem, error) {
	c, err := s.List(ctx)
	if err != nil {
		return 0, nil, err
	}
	var problems []Problem
	for _, p := range c.Values() {
		if err := p.Validate(); err != nil {
			problems = append(problems, Problem{ID: p.ID, Err: err})
		}
	}
	return c.Len(), problems, nil
}

// Seed creates each patient, skipping ids that already exist. It returns how
// many were added.
func (s *Service) Seed(ctx context.Context, patients []Patient) (int, error) {
	added := 0
	for _, p := range patients {
		if _, err := s.Create(ctx, p); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}

// mutate runs one load, fn, save cycle under mu. saved runs after a
// successful save, still under mu, so events leave in the order the
// changes were saved.
func (s *Service) mutate(ctx context.Context, fn func(c *Collection) error, saved func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	if err := s.store.Save(ctx, c); err != nil {
		return err
	}
	saved()
	return nil
}

func (s *Service) publish(ctx context.Context, typ, id string, p *Patient) {
	var payload interface{}
	if p != nil {
		payload = p
	}
	evt := events.New(typ, id, payload)
	evt.RequestID = middleware.RequestIDFromContext(ctx)
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).
			Str("patient_id", id).
			Str("event", typ).
			Msg("failed to publish patient event")
	}
}
