// Package sqlite persists the gesture template library and the accepted
// recognition event log.
package sqlite

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gestures/internal/gesture"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed persistence layer. The engine remains the
// single writer; the monitor reads events through it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open gesture db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// SaveClass upserts a gesture class and replaces its stored templates.
func (s *Store) SaveClass(class *gesture.GestureClass) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save class: %w", err)
	}
	defer tx.Rollback()

	def := class.Definition
	_, err = tx.Exec(`
		INSERT INTO gesture_classes (gesture_id, name, category, classifier, min_templates)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(gesture_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			classifier = excluded.classifier,
			min_templates = excluded.min_templates`,
		def.ID, def.Name, def.Category, string(def.Classifier), class.MinTemplates)
	if err != nil {
		return fmt.Errorf("upsert class %q: %w", def.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM gesture_templates WHERE gesture_id = ?`, def.ID); err != nil {
		return fmt.Errorf("clear templates for %q: %w", def.ID, err)
	}
	for _, t := range class.Templates {
		samples, err := json.Marshal(t.Samples)
		if err != nil {
			return fmt.Errorf("encode template %q: %w", t.ID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO gesture_templates
				(template_id, gesture_id, samples_json, recorded_at_ms, duration_ms, sample_rate)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, def.ID, string(samples), t.RecordedAtMs, t.DurationMs, t.SampleRate)
		if err != nil {
			return fmt.Errorf("insert template %q: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteClass removes a class and, via cascade, its templates.
func (s *Store) DeleteClass(gestureID string) error {
	res, err := s.db.Exec(`DELETE FROM gesture_classes WHERE gesture_id = ?`, gestureID)
	if err != nil {
		return fmt.Errorf("delete class %q: %w", gestureID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete class: %w: %q", gesture.ErrUnknownGesture, gestureID)
	}
	return nil
}

// LoadLibrary reads every stored class with its templates. Derived
// magnitude caches are rebuilt on load.
func (s *Store) LoadLibrary() ([]*gesture.GestureClass, error) {
	rows, err := s.db.Query(`
		SELECT gesture_id, name, category, classifier, min_templates
		FROM gesture_classes ORDER BY gesture_id`)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	defer rows.Close()

	var classes []*gesture.GestureClass
	for rows.Next() {
		var def gesture.GestureDefinition
		var classifier string
		var class gesture.GestureClass
		if err := rows.Scan(&def.ID, &def.Name, &def.Category, &classifier, &class.MinTemplates); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		def.Classifier = gesture.ClassifierType(classifier)
		class.Definition = def
		classes = append(classes, &class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}

	for _, class := range classes {
		templates, err := s.loadTemplates(class.Definition.ID)
		if err != nil {
			return nil, err
		}
		class.Templates = templates
	}
	return classes, nil
}

func (s *Store) loadTemplates(gestureID string) ([]*gesture.GestureTemplate, error) {
	rows, err := s.db.Query(`
		SELECT template_id, samples_json, recorded_at_ms, duration_ms, sample_rate
		FROM gesture_templates WHERE gesture_id = ? ORDER BY recorded_at_ms`, gestureID)
	if err != nil {
		return nil, fmt.Errorf("load templates for %q: %w", gestureID, err)
	}
	defer rows.Close()

	var out []*gesture.GestureTemplate
	for rows.Next() {
		t := &gesture.GestureTemplate{GestureID: gestureID}
		var samplesJSON string
		if err := rows.Scan(&t.ID, &samplesJSON, &t.RecordedAtMs, &t.DurationMs, &t.SampleRate); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(samplesJSON), &t.Samples); err != nil {
			return nil, fmt.Errorf("decode template %q: %w", t.ID, err)
		}
		t.Magnitudes()
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordEvent appends one recognition result to the event log.
func (s *Store) RecordEvent(r gesture.RecognitionResult) error {
	accepted := 0
	if r.Accepted {
		accepted = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO recognition_events
			(gesture_id, gesture_name, confidence, classifier, raw_score, ts_ms, window_ms, accepted, rejection_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GestureID, r.GestureName, r.Confidence, string(r.Classifier), r.RawScore,
		r.Timestamp, r.WindowDurationMs, accepted, string(r.RejectionReason))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// EventsInRange returns events with ts_ms in [startMs, endMs], newest
// first, capped at limit.
func (s *Store) EventsInRange(startMs, endMs int64, limit int) ([]gesture.RecognitionResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT gesture_id, gesture_name, confidence, classifier, raw_score, ts_ms, window_ms, accepted, rejection_reason
		FROM recognition_events
		WHERE ts_ms BETWEEN ? AND ?
		ORDER BY ts_ms DESC LIMIT ?`, startMs, endMs, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []gesture.RecognitionResult
	for rows.Next() {
		var r gesture.RecognitionResult
		var classifier, reason string
		var accepted int
		if err := rows.Scan(&r.GestureID, &r.GestureName, &r.Confidence, &classifier, &r.RawScore,
			&r.Timestamp, &r.WindowDurationMs, &accepted, &reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Classifier = gesture.ClassifierType(classifier)
		r.RejectionReason = gesture.RejectionReason(reason)
		r.Accepted = accepted == 1
		out = append(out, r)
	}
	return out, rows.Err()
}
