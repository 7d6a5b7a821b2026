// Package sink persists the customer profile table to SQLite.
//
// Each write replaces the customer_profiles table contents in one
// transaction. Quarantined customers are kept per run with their events
// stored as Snappy-compressed JSON so they can be replayed later.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

// Run describes one pipeline execution recorded in profile_runs.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Customers   int
	Profiles    int
	Unjoined    int
	Quarantined int
	Events      int
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Store is a SQLite profile database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, perrors.NewSinkError(perrors.CodeWriteFailed, "failed to create database directory", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, perrors.NewSinkError(perrors.CodeWriteFailed, "failed to open SQLite database", err)
	}
	// a single writer keeps SQLite from returning SQLITE_BUSY inside transactions
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", createProfilesSQL, createRunsSQL, createQuarantineSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, perrors.NewSinkError(perrors.CodeWriteFailed, "failed to initialize schema", err)
		}
	}

	return newStore(db, path), nil
}

func newStore(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL so the database is a single self-contained file,
// then closes it.
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.db.Close()
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to checkpoint WAL", err)
	}
	return s.db.Close()
}

// WriteRun replaces the profile table with rows and records the run and its
// quarantined customers, all in one transaction.
func (s *Store) WriteRun(ctx context.Context, run Run, rows []types.ProfileRow, quarantined []types.QuarantinedCustomer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM customer_profiles"); err != nil {
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to clear profiles", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertProfileSQL)
	if err != nil {
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to prepare insert statement", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		p, d := r.Profile, r.Demographic
		_, err := stmt.ExecContext(ctx,
			p.PersonID,
			p.Spend[types.CategoryBOGO].Count, p.Spend[types.CategoryBOGO].Value,
			p.Spend[types.CategoryDiscount].Count, p.Spend[types.CategoryDiscount].Value,
			p.Spend[types.CategoryInformational].Count, p.Spend[types.CategoryInformational].Value,
			p.Spend[types.CategoryNoOffer].Count, p.Spend[types.CategoryNoOffer].Value,
			p.CompletedOffers,
			p.EarnedBOGO.Count, p.EarnedDiscount.Count, p.EarnedBOGO.Value, p.EarnedDiscount.Value,
			p.Incidental.Count, p.Incidental.Value,
			p.OfferedBOGO, p.OfferedDiscount, p.OfferedInformational,
			d.Gender, d.Age, d.Income, d.CustomerSince,
			r.BestOfferByValue.String(), r.BestOfferByCount.String(),
		)
		if err != nil {
			return perrors.NewSinkError(perrors.CodeWriteFailed,
				fmt.Sprintf("failed to insert profile %s", p.PersonID), err)
		}
	}

	for _, q := range quarantined {
		blob, err := encodeEvents(q.Events)
		if err != nil {
			return perrors.NewSinkError(perrors.CodeWriteFailed,
				fmt.Sprintf("failed to encode events of %s", q.PersonID), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quarantined_customers (run_id, person, code, message, event_count, events) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, q.PersonID, q.Code, q.Message, len(q.Events), blob,
		); err != nil {
			return perrors.NewSinkError(perrors.CodeWriteFailed,
				fmt.Sprintf("failed to quarantine %s", q.PersonID), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profile_runs (run_id, started_at, finished_at, customers, profiles, unjoined, quarantined, events) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Customers, run.Profiles, run.Unjoined, run.Quarantined, run.Events,
	); err != nil {
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to record run", err)
	}

	if err := tx.Commit(); err != nil {
		return perrors.NewSinkError(perrors.CodeWriteFailed, "failed to commit", err)
	}
	return nil
}

// ReadProfiles loads the profile table ordered by person id.
func (s *Store) ReadProfiles(ctx context.Context) ([]types.ProfileRow, error) {
	rs, err := s.db.QueryContext(ctx, selectProfilesSQL)
	if err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to query profiles", err)
	}
	defer rs.Close()

	var out []types.ProfileRow
	for rs.Next() {
		var (
			r                types.ProfileRow
			byValue, byCount string
		)
		p, d := &r.Profile, &r.Demographic
		if err := rs.Scan(
			&p.PersonID,
			&p.Spend[types.CategoryBOGO].Count, &p.Spend[types.CategoryBOGO].Value,
			&p.Spend[types.CategoryDiscount].Count, &p.Spend[types.CategoryDiscount].Value,
			&p.Spend[types.CategoryInformational].Count, &p.Spend[types.CategoryInformational].Value,
			&p.Spend[types.CategoryNoOffer].Count, &p.Spend[types.CategoryNoOffer].Value,
			&p.CompletedOffers,
			&p.EarnedBOGO.Count, &p.EarnedDiscount.Count, &p.EarnedBOGO.Value, &p.EarnedDiscount.Value,
			&p.Incidental.Count, &p.Incidental.Value,
			&p.OfferedBOGO, &p.OfferedDiscount, &p.OfferedInformational,
			&d.Gender, &d.Age, &d.Income, &d.CustomerSince,
			&byValue, &byCount,
		); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to scan profile", err)
		}
		d.PersonID = p.PersonID
		if r.BestOfferByValue, err = types.ParseCategory(byValue); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed, "invalid best_offer_value", err)
		}
		if r.BestOfferByCount, err = types.ParseCategory(byCount); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed, "invalid best_offer_count", err)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to iterate profiles", err)
	}
	return out, nil
}

// ReadQuarantined loads the quarantined customers of a run, decoding their events.
func (s *Store) ReadQuarantined(ctx context.Context, runID string) ([]types.QuarantinedCustomer, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT person, code, message, events FROM quarantined_customers WHERE run_id = ? ORDER BY person`, runID)
	if err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to query quarantine", err)
	}
	defer rs.Close()

	var out []types.QuarantinedCustomer
	for rs.Next() {
		var (
			q    types.QuarantinedCustomer
			blob []byte
		)
		if err := rs.Scan(&q.PersonID, &q.Code, &q.Message, &blob); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to scan quarantine", err)
		}
		if q.Events, err = decodeEvents(blob); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed,
				fmt.Sprintf("failed to decode events of %s", q.PersonID), err)
		}
		out = append(out, q)
	}
	if err := rs.Err(); err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to iterate quarantine", err)
	}
	return out, nil
}

// Runs returns recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, customers, profiles, unjoined, quarantined, events FROM profile_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to query runs", err)
	}
	defer rs.Close()

	var out []Run
	for rs.Next() {
		var (
			r                 Run
			started, finished int64
		)
		if err := rs.Scan(&r.ID, &started, &finished, &r.Customers, &r.Profiles, &r.Unjoined, &r.Quarantined, &r.Events); err != nil {
			return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to scan run", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, perrors.NewSinkError(perrors.CodeReadFailed, "failed to iterate runs", err)
	}
	return out, nil
}

func encodeEvents(events []types.Event) ([]byte, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodeEvents(blob []byte) ([]types.Event, error) {
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, err
	}
	var events []types.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}
