// Package store persists decision records to sqlite so a chain can continue
// across process restarts. Records are written in append order and replayed
// in the same order; the first new record after a replay links to the
// persisted head.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/proofnest/proofnest/pkg/record"
)

// ErrHashMismatch is returned when a persisted record's stored hash cannot be
// reproduced from its stored fields.
var ErrHashMismatch = errors.New("stored record hash is not reproducible")

// Store is a sqlite-backed chain store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an existing database handle. Used by tests with in-memory
// databases.
func OpenDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS decision_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        agent_id TEXT NOT NULL,
        decision_id TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        actor_id TEXT NOT NULL,
        actor_type TEXT NOT NULL,
        actor_model TEXT NOT NULL DEFAULT '',
        action TEXT NOT NULL,
        reasoning TEXT NOT NULL,
        alternatives JSON NOT NULL DEFAULT '[]',
        confidence REAL NOT NULL,
        risk_level TEXT NOT NULL,
        previous_hash TEXT NOT NULL DEFAULT '',
        record_hash TEXT NOT NULL UNIQUE,
        signature JSON
    );
    CREATE INDEX IF NOT EXISTS idx_decision_records_agent
        ON decision_records (agent_id, id);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrating schema: %w", err)
	}
	return nil
}

// SaveRecord appends one record for agentID.
func (s *Store) SaveRecord(agentID string, r *record.DecisionRecord) error {
	alts, err := json.Marshal(r.Alternatives())
	if err != nil {
		return fmt.Errorf("store: marshaling alternatives: %w", err)
	}
	var sig any
	if sd := r.Signature(); sd != nil {
		raw, err := json.Marshal(sd)
		if err != nil {
			return fmt.Errorf("store: marshaling signature: %w", err)
		}
		sig = string(raw)
	}

	actor := r.Actor()
	query := `INSERT INTO decision_records (
        agent_id, decision_id, timestamp, actor_id, actor_type, actor_model,
        action, reasoning, alternatives, confidence, risk_level,
        previous_hash, record_hash, signature
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(context.Background(), query,
		agentID, r.DecisionID(), r.Timestamp(), actor.ID, string(actor.Type), actor.Model,
		r.Action(), r.Reasoning(), string(alts), r.Confidence(), string(r.RiskLevel()),
		r.PreviousHash(), r.RecordHash(), sig,
	)
	if err != nil {
		return fmt.Errorf("store: inserting record: %w", err)
	}
	return nil
}

// LoadChain replays every persisted record for agentID in append order. Each
// record is reconstructed through the normal constructor, so its hash is
// recomputed; a stored hash that no longer reproduces fails with
// ErrHashMismatch.
func (s *Store) LoadChain(agentID string) ([]*record.DecisionRecord, error) {
	query := `
        SELECT decision_id, timestamp, actor_id, actor_type, actor_model,
               action, reasoning, alternatives, confidence, risk_level,
               previous_hash, record_hash, signature
        FROM decision_records
        WHERE agent_id = ?
        ORDER BY id`
	rows, err := s.db.QueryContext(context.Background(), query, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: querying chain: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*record.DecisionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating chain: %w", err)
	}
	return out, nil
}

// Head returns the record hash of the last persisted record for agentID, or
// an empty string for an empty chain.
func (s *Store) Head(agentID string) (string, error) {
	query := `
        SELECT record_hash FROM decision_records
        WHERE agent_id = ?
        ORDER BY id DESC
        LIMIT 1`
	var head string
	err := s.db.QueryRowContext(context.Background(), query, agentID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: querying head: %w", err)
	}
	return head, nil
}

func scanRecord(rows *sql.Rows) (*record.DecisionRecord, error) {
	var (
		decisionID, timestamp, actorID, actorType, actorModel string
		action, reasoning, altsJSON, riskLevel                string
		previousHash, recordHash                              string
		confidence                                            float64
		sigJSON                                               sql.NullString
	)
	if err := rows.Scan(&decisionID, &timestamp, &actorID, &actorType, &actorModel,
		&action, &reasoning, &altsJSON, &confidence, &riskLevel,
		&previousHash, &recordHash, &sigJSON); err != nil {
		return nil, fmt.Errorf("store: scanning record: %w", err)
	}

	var alts []string
	if err := json.Unmarshal([]byte(altsJSON), &alts); err != nil {
		return nil, fmt.Errorf("store: decoding alternatives: %w", err)
	}
	actorTag, err := record.ParseActorType(actorType)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	r, err := record.New(record.Params{
		DecisionID:   decisionID,
		Timestamp:    timestamp,
		Actor:        record.Actor{ID: actorID, Type: actorTag, Model: actorModel},
		Action:       action,
		Reasoning:    reasoning,
		Alternatives: alts,
		Confidence:   confidence,
		RiskLevel:    record.RiskLevel(riskLevel),
		PreviousHash: previousHash,
	})
	if err != nil {
		return nil, fmt.Errorf("store: rebuilding record %s: %w", decisionID, err)
	}
	if r.RecordHash() != recordHash {
		return nil, fmt.Errorf("%w: record %s", ErrHashMismatch, decisionID)
	}

	if sigJSON.Valid && sigJSON.String != "" {
		var sd record.SignatureDescriptor
		if err := json.Unmarshal([]byte(sigJSON.String), &sd); err != nil {
			return nil, fmt.Errorf("store: decoding signature: %w", err)
		}
		r = r.WithSignature(sd)
	}
	return r, nil
}
