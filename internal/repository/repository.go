// Package repository persists simulations and their timeline events.
package repository

import (
	"context"
	"time"

	"decision-simulator/internal/domain"
)

// timeLayout is fixed-width ISO-8601 so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is implemented by every persistence backend.
type Store interface {
	// SaveSimulation writes the simulation and all its events atomically.
	SaveSimulation(ctx context.Context, sim domain.Simulation, events []domain.TimelineEvent) error
	// GetSimulation returns the simulation and its events ordered by path then
	// year, or domain.ErrSimulationNotFound.
	GetSimulation(ctx context.Context, id string) (domain.Simulation, []domain.TimelineEvent, error)
	// ListSimulations returns every simulation, newest first.
	ListSimulations(ctx context.Context) ([]domain.Simulation, error)
	// DeleteSimulation removes the events and then the simulation. Unknown ids
	// are not an error.
	DeleteSimulation(ctx context.Context, id string) error
}

var (
	_ Store = (*DynamoClient)(nil)
	_ Store = (*SQLiteClient)(nil)
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
