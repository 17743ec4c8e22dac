package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"decision-simulator/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS simulations (
	id                TEXT PRIMARY KEY,
	user_name         TEXT NOT NULL,
	user_age          INTEGER NOT NULL,
	user_personality  TEXT NOT NULL DEFAULT '',
	decision_question TEXT NOT NULL,
	path_a_title      TEXT,
	path_b_title      TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS timeline_events (
	id            TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL REFERENCES simulations(id),
	path          TEXT NOT NULL CHECK (path IN ('A', 'B')),
	year          INTEGER NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL,
	impact_score  REAL NOT NULL,
	image_url     TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timeline_events_simulation
	ON timeline_events (simulation_id, path, year);

CREATE INDEX IF NOT EXISTS idx_simulations_created_at
	ON simulations (created_at);
`

type simulationRow struct {
	ID               string         `db:"id"`
	UserName         string         `db:"user_name"`
	UserAge          int            `db:"user_age"`
	UserPersonality  string         `db:"user_personality"`
	DecisionQuestion string         `db:"decision_question"`
	PathATitle       sql.NullString `db:"path_a_title"`
	PathBTitle       sql.NullString `db:"path_b_title"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

type eventRow struct {
	ID           string         `db:"id"`
	SimulationID string         `db:"simulation_id"`
	Path         string         `db:"path"`
	Year         int            `db:"year"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	ImpactScore  float64        `db:"impact_score"`
	ImageURL     sql.NullString `db:"image_url"`
	CreatedAt    string         `db:"created_at"`
}

// SQLiteClient stores simulations in two related SQLite tables.
type SQLiteClient struct {
	conn *sqlx.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteClient, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create data dir: %w", err)
		}
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open db: %w", err)
	}
	// one writer at a time
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("repository: migrate: %w", err)
	}
	return &SQLiteClient{conn: conn}, nil
}

// Close closes the database connection.
func (c *SQLiteClient) Close() error {
	return c.conn.Close()
}

// SaveSimulation inserts the simulation and its events in one transaction.
func (c *SQLiteClient) SaveSimulation(ctx context.Context, sim domain.Simulation, events []domain.TimelineEvent) (err error) {
	tx, err := c.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: SaveSimulation begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO simulations (id, user_name, user_age, user_personality, decision_question,
			path_a_title, path_b_title, created_at, updated_at)
		VALUES (:id, :user_name, :user_age, :user_personality, :decision_question,
			:path_a_title, :path_b_title, :created_at, :updated_at)`,
		toSimulationRow(sim),
	); err != nil {
		return fmt.Errorf("repository: SaveSimulation insert simulation: %w", err)
	}

	for _, ev := range events {
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO timeline_events (id, simulation_id, path, year, title, description,
				impact_score, image_url, created_at)
			VALUES (:id, :simulation_id, :path, :year, :title, :description,
				:impact_score, :image_url, :created_at)`,
			toEventRow(ev),
		); err != nil {
			return fmt.Errorf("repository: SaveSimulation insert event %s: %w", ev.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repository: SaveSimulation commit: %w", err)
	}
	return nil
}

// GetSimulation returns the simulation and its events, path A before B, years ascending.
func (c *SQLiteClient) GetSimulation(ctx context.Context, id string) (domain.Simulation, []domain.TimelineEvent, error) {
	var row simulationRow
	err := c.conn.GetContext(ctx, &row, `SELECT * FROM simulations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Simulation{}, nil, domain.ErrSimulationNotFound
	}
	if err != nil {
		return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation: %w", err)
	}
	sim, err := row.toDomain()
	if err != nil {
		return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation: %w", err)
	}

	var rows []eventRow
	if err := c.conn.SelectContext(ctx, &rows, `
		SELECT * FROM timeline_events
		WHERE simulation_id = ?
		ORDER BY path ASC, year ASC`, id); err != nil {
		return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation events: %w", err)
	}
	events := make([]domain.TimelineEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toDomain()
		if err != nil {
			return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation events: %w", err)
		}
		events = append(events, ev)
	}
	return sim, events, nil
}

// ListSimulations returns every simulation, newest first.
func (c *SQLiteClient) ListSimulations(ctx context.Context) ([]domain.Simulation, error) {
	var rows []simulationRow
	if err := c.conn.SelectContext(ctx, &rows,
		`SELECT * FROM simulations ORDER BY created_at DESC, rowid DESC`); err != nil {
		return nil, fmt.Errorf("repository: ListSimulations: %w", err)
	}
	sims := make([]domain.Simulation, 0, len(rows))
	for _, r := range rows {
		sim, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("repository: ListSimulations: %w", err)
		}
		sims = append(sims, sim)
	}
	return sims, nil
}

// DeleteSimulation deletes events then the simulation in one transaction.
func (c *SQLiteClient) DeleteSimulation(ctx context.Context, id string) (err error) {
	tx, err := c.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: DeleteSimulation begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM timeline_events WHERE simulation_id = ?`, id); err != nil {
		return fmt.Errorf("repository: DeleteSimulation events: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("repository: DeleteSimulation simulation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repository: DeleteSimulation commit: %w", err)
	}
	return nil
}

func toSimulationRow(sim domain.Simulation) simulationRow {
	return simulationRow{
		ID:               sim.ID,
		UserName:         sim.UserName,
		UserAge:          sim.UserAge,
		UserPersonality:  sim.UserPersonality,
		DecisionQuestion: sim.DecisionQuestion,
		PathATitle:       sql.NullString{String: sim.PathATitle, Valid: sim.PathATitle != ""},
		PathBTitle:       sql.NullString{String: sim.PathBTitle, Valid: sim.PathBTitle != ""},
		CreatedAt:        formatTime(sim.CreatedAt),
		UpdatedAt:        formatTime(sim.UpdatedAt),
	}
}

func (r simulationRow) toDomain() (domain.Simulation, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Simulation{}, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return domain.Simulation{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return domain.Simulation{
		ID:               r.ID,
		UserName:         r.UserName,
		UserAge:          r.UserAge,
		UserPersonality:  r.UserPersonality,
		DecisionQuestion: r.DecisionQuestion,
		PathATitle:       r.PathATitle.String,
		PathBTitle:       r.PathBTitle.String,
		CreatedAt:        created,
		UpdatedAt:        updated,
	}, nil
}

func toEventRow(ev domain.TimelineEvent) eventRow {
	row := eventRow{
		ID:           ev.ID,
		SimulationID: ev.SimulationID,
		Path:         string(ev.Path),
		Year:         ev.Year,
		Title:        ev.Title,
		Description:  ev.Description,
		ImpactScore:  ev.ImpactScore,
		CreatedAt:    formatTime(ev.CreatedAt),
	}
	if ev.ImageURL != nil {
		row.ImageURL = sql.NullString{String: *ev.ImageURL, Valid: true}
	}
	return row
}

func (r eventRow) toDomain() (domain.TimelineEvent, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("parse created_at: %w", err)
	}
	ev := domain.TimelineEvent{
		ID:           r.ID,
		SimulationID: r.SimulationID,
		Path:         domain.PathID(r.Path),
		Year:         r.Year,
		Title:        r.Title,
		Description:  r.Description,
		ImpactScore:  r.ImpactScore,
		CreatedAt:    created,
	}
	if r.ImageURL.Valid {
		url := r.ImageURL.String
		ev.ImageURL = &url
	}
	return ev, nil
}
