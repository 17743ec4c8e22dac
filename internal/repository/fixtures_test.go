package repository

import (
	"fmt"
	"time"

	"decision-simulator/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

func strPtr(s string) *string { return &s }

func sampleSimulation(id string, created time.Time) domain.Simulation {
	return domain.Simulation{
		ID:               id,
		UserName:         "Ada",
		UserAge:          34,
		UserPersonality:  "curious",
		DecisionQuestion: "Should I quit my job?",
		PathATitle:       "Take the Leap",
		PathBTitle:       "Stay Secure",
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

// sampleEvents builds both paths in storage order.
func sampleEvents(simID string, created time.Time) []domain.TimelineEvent {
	years := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}
	events := make([]domain.TimelineEvent, 0, 2*len(years))
	for _, path := range []domain.PathID{domain.PathA, domain.PathB} {
		for _, y := range years {
			ev := domain.TimelineEvent{
				ID:           fmt.Sprintf("%s-%s-%d", simID, path, y),
				SimulationID: simID,
				Path:         path,
				Year:         y,
				Title:        fmt.Sprintf("%s year %d", path, y),
				Description:  "something happens",
				ImpactScore:  0.5 + float64(y)/100,
				CreatedAt:    created,
			}
			if y == 0 || y == 5 || y == 10 {
				ev.ImageURL = strPtr(fmt.Sprintf("https://cdn.example/%s/%d.png", path, y))
			}
			events = append(events, ev)
		}
	}
	return events
}
