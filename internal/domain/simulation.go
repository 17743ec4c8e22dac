package domain

import (
	"errors"
	"time"
)

// ErrSimulationNotFound is returned by stores when no simulation has the requested id.
var ErrSimulationNotFound = errors.New("simulation not found")

// PathID designates one of the two alternative timelines of a simulation.
type PathID string

const (
	PathA PathID = "A" // bold
	PathB PathID = "B" // safe
)

// Simulation is one persisted generation request and its path titles.
type Simulation struct {
	ID               string    `json:"id"`
	UserName         string    `json:"user_name"`
	UserAge          int       `json:"user_age"`
	UserPersonality  string    `json:"user_personality"`
	DecisionQuestion string    `json:"decision_question"`
	PathATitle       string    `json:"path_a_title"`
	PathBTitle       string    `json:"path_b_title"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TimelineEvent is one milestone within one path of a simulation.
// ImageURL is nil for years that carry no image.
type TimelineEvent struct {
	ID           string    `json:"id"`
	SimulationID string    `json:"simulation_id"`
	Path         PathID    `json:"path"`
	Year         int       `json:"year"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ImpactScore  float64   `json:"impact_score"`
	ImageURL     *string   `json:"image_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Path groups the ordered events of one timeline under its title.
type Path struct {
	Path   PathID          `json:"path"`
	Title  string          `json:"title"`
	Events []TimelineEvent `json:"events"`
}
