package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/mudclient/internal/ledger"
)

// ErrSessionNotFound is returned when a transcript lookup yields no session.
var ErrSessionNotFound = errors.New("archived session not found")

// SessionSummary describes one archived session.
type SessionSummary struct {
	ID         string
	PlayerID   string
	EntryCount int
	ClosedAt   time.Time
}

// TranscriptRepository stores and reads session transcripts.
type TranscriptRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewTranscriptRepository creates a TranscriptRepository backed by db.
//
// Precondition: db must be a valid, open connection pool.
func NewTranscriptRepository(db *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{db: db, now: time.Now}
}

var transcriptColumns = []string{
	"session_id", "position", "entry_id", "author_id", "room_id",
	"kind", "text", "npc_id", "quest", "created_at",
}

// SaveTranscript writes entries as a new session for playerID in one transaction.
// Streaming entries are skipped; only frozen text is archived.
//
// Postcondition: Returns nil without writing when there is nothing frozen to save.
func (r *TranscriptRepository) SaveTranscript(ctx context.Context, playerID string, entries []ledger.Entry) error {
	rows, err := transcriptRows(entries)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	sessionID := uuid.New()
	for _, row := range rows {
		row[0] = sessionID
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transcript tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, player_id, entry_count, closed_at) VALUES ($1, $2, $3, $4)`,
		sessionID, playerID, len(rows), r.now(),
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"transcript_entries"}, transcriptColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copying transcript entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transcript: %w", err)
	}
	return nil
}

// transcriptRows converts the frozen entries to copy rows. Column 0 is left for the session ID.
func transcriptRows(entries []ledger.Entry) ([][]interface{}, error) {
	var rows [][]interface{}
	for _, e := range entries {
		if e.IsStreaming {
			continue
		}
		var quest []byte
		if e.Quest != nil {
			b, err := json.Marshal(e.Quest)
			if err != nil {
				return nil, fmt.Errorf("encoding quest for entry %s: %w", e.ID, err)
			}
			quest = b
		}
		rows = append(rows, []interface{}{
			nil, len(rows), e.ID, e.AuthorID, e.RoomID,
			string(e.Kind), e.Text, e.NPCID, quest, e.Timestamp,
		})
	}
	return rows, nil
}

// Sessions lists up to limit archived sessions for playerID, newest first.
func (r *TranscriptRepository) Sessions(ctx context.Context, playerID string, limit int) ([]SessionSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, player_id, entry_count, closed_at
		 FROM sessions WHERE player_id = $1
		 ORDER BY closed_at DESC LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var id uuid.UUID
		if err := rows.Scan(&id, &s.PlayerID, &s.EntryCount, &s.ClosedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.ID = id.String()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Transcript loads the entries of sessionID in ledger order.
//
// Postcondition: Returns ErrSessionNotFound if the session does not exist.
func (r *TranscriptRepository) Transcript(ctx context.Context, sessionID string) ([]ledger.Entry, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("parsing session id %q: %w", sessionID, err)
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	rows, err := r.db.Query(ctx,
		`SELECT entry_id, author_id, room_id, kind, text, npc_id, quest, created_at
		 FROM transcript_entries WHERE session_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e     ledger.Entry
			kind  string
			quest []byte
		)
		if err := rows.Scan(&e.ID, &e.AuthorID, &e.RoomID, &kind, &e.Text, &e.NPCID, &quest, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		e.Kind = ledger.Kind(kind)
		if len(quest) > 0 {
			e.Quest = &ledger.QuestCompletion{}
			if err := json.Unmarshal(quest, e.Quest); err != nil {
				return nil, fmt.Errorf("decoding quest for entry %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
