package usecase

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/imagery"
	"decision-simulator/internal/scenario"
)

const (
	defaultMaxDecision      = 10000
	defaultImageConcurrency = 6
	maxNameLen              = 1000
)

// SimulationStore is the persistence consumed by the service.
type SimulationStore interface {
	SaveSimulation(ctx context.Context, sim domain.Simulation, events []domain.TimelineEvent) error
	GetSimulation(ctx context.Context, id string) (domain.Simulation, []domain.TimelineEvent, error)
	ListSimulations(ctx context.Context) ([]domain.Simulation, error)
	DeleteSimulation(ctx context.Context, id string) error
}

// PortraitProvider returns an image for milestone years and never fails.
type PortraitProvider interface {
	Portrait(ctx context.Context, subject imagery.Subject, yearOffset int) (string, bool)
}

type Config struct {
	MaxDecisionLen   int
	ImageConcurrency int
}

type SimulationService struct {
	store     SimulationStore
	images    PortraitProvider
	scenarios *scenario.Table
	logger    *slog.Logger
	cfg       Config

	now   func() time.Time
	newID func() string
}

type SimulateInput struct {
	Name        string
	Age         int
	Personality string
	Decision    string
}

type SimulateOutput struct {
	SimulationID string        `json:"simulation_id"`
	Paths        []domain.Path `json:"paths"`
}

type SimulationDetail struct {
	Simulation domain.Simulation `json:"simulation"`
	Paths      []domain.Path     `json:"paths"`
}

func NewSimulationService(store SimulationStore, images PortraitProvider, logger *slog.Logger, cfg Config) (*SimulationService, error) {
	if store == nil {
		return nil, errors.New("usecase: simulation store must not be nil")
	}
	if images == nil {
		return nil, errors.New("usecase: portrait provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDecisionLen <= 0 {
		cfg.MaxDecisionLen = defaultMaxDecision
	}
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = defaultImageConcurrency
	}
	return &SimulationService{
		store:     store,
		images:    images,
		scenarios: scenario.Default(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     newUUID,
	}, nil
}

// Simulate classifies the decision, builds both paths, fetches milestone
// portraits and persists the simulation with its twenty events in one write.
func (s *SimulationService) Simulate(ctx context.Context, in SimulateInput) (SimulateOutput, error) {
	name := strings.TrimSpace(in.Name)
	decision := strings.TrimSpace(in.Decision)
	switch {
	case name == "" || decision == "":
		return SimulateOutput{}, newError(ErrorInvalidInput, "missing_required_fields", nil)
	case in.Age <= 0:
		return SimulateOutput{}, newError(ErrorInvalidInput, "invalid_age", nil)
	case len(name) > maxNameLen:
		return SimulateOutput{}, newError(ErrorInvalidInput, "name_too_long", nil)
	case len(decision) > s.cfg.MaxDecisionLen:
		return SimulateOutput{}, newError(ErrorInvalidInput, "decision_too_long", nil)
	}
	personality := strings.TrimSpace(in.Personality)

	now := s.now().UTC()
	simID := s.newID()
	bold := s.scenarios.ForDecision(decision, true)
	safe := s.scenarios.ForDecision(decision, false)

	log := s.logger.With("simulation_id", simID)
	log.InfoContext(ctx, "generating simulation", "category", scenario.Classify(decision))

	paths := []domain.Path{
		buildPath(simID, domain.PathA, bold, now, s.newID),
		buildPath(simID, domain.PathB, safe, now, s.newID),
	}
	s.attachPortraits(ctx, paths, imagery.Subject{Name: name, Age: in.Age, Personality: personality})

	sim := domain.Simulation{
		ID:               simID,
		UserName:         name,
		UserAge:          in.Age,
		UserPersonality:  personality,
		DecisionQuestion: decision,
		PathATitle:       paths[0].Title,
		PathBTitle:       paths[1].Title,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	events := make([]domain.TimelineEvent, 0, len(paths[0].Events)+len(paths[1].Events))
	for _, p := range paths {
		events = append(events, p.Events...)
	}
	if err := s.store.SaveSimulation(ctx, sim, events); err != nil {
		log.ErrorContext(ctx, "failed to persist simulation", "err", err)
		return SimulateOutput{}, newError(ErrorInternal, "store_write_error", err)
	}

	log.InfoContext(ctx, "simulation generated", "events", len(events))
	return SimulateOutput{SimulationID: simID, Paths: paths}, nil
}

func buildPath(simID string, id domain.PathID, sc scenario.Scenario, now time.Time, newID func() string) domain.Path {
	events := make([]domain.TimelineEvent, 0, len(sc.Events))
	for _, e := range sc.Events {
		events = append(events, domain.TimelineEvent{
			ID:           newID(),
			SimulationID: simID,
			Path:         id,
			Year:         e.Year,
			Title:        e.Title,
			Description:  e.Description,
			ImpactScore:  e.ImpactScore,
			CreatedAt:    now,
		})
	}
	return domain.Path{Path: id, Title: sc.Title, Events: events}
}

// attachPortraits fetches every milestone image concurrently. Each goroutine
// writes only its own event, so order is unaffected by completion order.
func (s *SimulationService) attachPortraits(ctx context.Context, paths []domain.Path, subject imagery.Subject) {
	var g errgroup.Group
	g.SetLimit(s.cfg.ImageConcurrency)
	for pi := range paths {
		for ei := range paths[pi].Events {
			ev := &paths[pi].Events[ei]
			if !imagery.IsMilestone(ev.Year) {
				continue
			}
			g.Go(func() error {
				if ref, ok := s.images.Portrait(ctx, subject, ev.Year); ok {
					ev.ImageURL = &ref
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// GetSimulation returns the stored simulation with its events split by path.
func (s *SimulationService) GetSimulation(ctx context.Context, id string) (SimulationDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SimulationDetail{}, newError(ErrorInvalidInput, "missing_simulation_id", nil)
	}
	sim, events, err := s.store.GetSimulation(ctx, id)
	if errors.Is(err, domain.ErrSimulationNotFound) {
		return SimulationDetail{}, newError(ErrorNotFound, "simulation_not_found", err)
	}
	if err != nil {
		return SimulationDetail{}, newError(ErrorInternal, "store_read_error", err)
	}

	pathA := domain.Path{Path: domain.PathA, Title: orDefault(sim.PathATitle, "Path A"), Events: []domain.TimelineEvent{}}
	pathB := domain.Path{Path: domain.PathB, Title: orDefault(sim.PathBTitle, "Path B"), Events: []domain.TimelineEvent{}}
	for _, ev := range events {
		switch ev.Path {
		case domain.PathA:
			pathA.Events = append(pathA.Events, ev)
		case domain.PathB:
			pathB.Events = append(pathB.Events, ev)
		}
	}
	sortByYear(pathA.Events)
	sortByYear(pathB.Events)

	return SimulationDetail{Simulation: sim, Paths: []domain.Path{pathA, pathB}}, nil
}

// History lists every simulation, newest first.
func (s *SimulationService) History(ctx context.Context) ([]domain.Simulation, error) {
	sims, err := s.store.ListSimulations(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "store_read_error", err)
	}
	if sims == nil {
		sims = []domain.Simulation{}
	}
	return sims, nil
}

// DeleteSimulation removes the simulation and its events. Unknown ids succeed.
func (s *SimulationService) DeleteSimulation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return newError(ErrorInvalidInput, "missing_simulation_id", nil)
	}
	if err := s.store.DeleteSimulation(ctx, id); err != nil {
		return newError(ErrorInternal, "store_delete_error", err)
	}
	s.logger.InfoContext(ctx, "simulation deleted", "simulation_id", id)
	return nil
}

func sortByYear(events []domain.TimelineEvent) {
	slices.SortStableFunc(events, func(a, b domain.TimelineEvent) int { return a.Year - b.Year })
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var newUUID = func() string {
	return uuid.NewString()
}
