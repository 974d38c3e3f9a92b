package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/basegraphhq/researchd/common/llm"
	coredb "github.com/basegraphhq/researchd/core/db"
)

// Store owns the single SQL handle backing every research session. It is
// constructed once at startup and handed a Session view per query. All
// memory-record writes go through a single mutex, which is plenty at the
// scale of one research session's record volume; the tool-call audit insert
// (RecordToolCall) does not take it.
type Store struct {
	db       *coredb.DB
	embedder llm.Embedder
	mu       sync.Mutex
}

// NewStore builds the Shared Memory Store. embedder is the external
// embedding collaborator; a failed embedding call is fatal only to the
// single Store/UpsertSingle call that triggered it.
func NewStore(database *coredb.DB, embedder llm.Embedder) *Store {
	return &Store{db: database, embedder: embedder}
}

// Session returns a queryID-scoped view over the store. Every phase
// controller, agent runner, and tool executor for one research session
// shares a single Session obtained this way.
func (s *Store) Session(queryID string) *Session {
	return &Session{store: s, queryID: queryID}
}

// Session is a queryID-scoped handle onto the Shared Memory Store. Reads
// and writes issued through it are automatically confined to queryID;
// records are never visible outside their owning session.
type Session struct {
	store   *Store
	queryID string
}

// QueryID returns the session's owning query id.
func (sess *Session) QueryID() string {
	return sess.queryID
}

// Clear deletes all memories, vectors, and tool-call rows for this session.
// Must complete before any other operation on the session runs; the
// orchestrator calls this once, synchronously, at research start.
func (sess *Session) Clear(ctx context.Context) error {
	sess.store.mu.Lock()
	defer sess.store.mu.Unlock()

	return sess.store.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_memories WHERE memory_id IN (SELECT id FROM memories WHERE query_id = ?)`, sess.queryID); err != nil {
			return fmt.Errorf("clearing vectors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE query_id = ?`, sess.queryID); err != nil {
			return fmt.Errorf("clearing memories: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_calls WHERE query_id = ?`, sess.queryID); err != nil {
			return fmt.Errorf("clearing tool call audit: %w", err)
		}
		return nil
	})
}

// Store computes the embedding for content and inserts a new record
// atomically into memories and vec_memories. Returns ErrEmbedderUnavailable
// if the embedding call fails; on that path nothing is inserted.
func (sess *Session) Store(ctx context.Context, kind Kind, content, createdBy string, metadata map[string]any) (int64, error) {
	vec, err := sess.store.embedder.Embed(ctx, content)
	if err != nil {
		return 0, &ErrEmbedderUnavailable{Cause: err}
	}

	sess.store.mu.Lock()
	defer sess.store.mu.Unlock()

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = sess.store.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO memories (query_id, kind, content, created_by, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			sess.queryID, string(kind), content, createdBy, coredb.NowUnix(), metaJSON)
		if err != nil {
			return fmt.Errorf("inserting memory: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading inserted id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO vec_memories (memory_id, embedding) VALUES (?, ?)`, id, encodeVector(vec)); err != nil {
			return fmt.Errorf("inserting vector: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "memory stored", "memory_id", id, "kind", kind, "created_by", createdBy)
	return id, nil
}

// UpsertSingle behaves like Store, except an existing row with the same
// (kind, created_by) for this session is UPDATED in place instead of
// appended. Used by the supervisor for its feedback record, keeping at
// most one feedback row per (query_id, created_by) pair.
func (sess *Session) UpsertSingle(ctx context.Context, kind Kind, content, createdBy string, metadata map[string]any) (int64, error) {
	vec, err := sess.store.embedder.Embed(ctx, content)
	if err != nil {
		return 0, &ErrEmbedderUnavailable{Cause: err}
	}

	sess.store.mu.Lock()
	defer sess.store.mu.Unlock()

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = sess.store.db.WithTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM memories WHERE query_id = ? AND kind = ? AND created_by = ?`,
			sess.queryID, string(kind), createdBy).Scan(&existingID)

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx,
				`INSERT INTO memories (query_id, kind, content, created_by, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
				sess.queryID, string(kind), content, createdBy, coredb.NowUnix(), metaJSON)
			if err != nil {
				return fmt.Errorf("inserting memory: %w", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading inserted id: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO vec_memories (memory_id, embedding) VALUES (?, ?)`, id, encodeVector(vec)); err != nil {
				return fmt.Errorf("inserting vector: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("looking up existing row: %w", err)

		default:
			id = existingID
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET content = ?, created_at = ?, metadata = ? WHERE id = ?`,
				content, coredb.NowUnix(), metaJSON, id); err != nil {
				return fmt.Errorf("updating memory: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_memories SET embedding = ? WHERE memory_id = ?`, encodeVector(vec), id); err != nil {
				return fmt.Errorf("updating vector: %w", err)
			}
			return nil
		}
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "memory upserted", "memory_id", id, "kind", kind, "created_by", createdBy)
	return id, nil
}

// ByKind returns all records of kind for this session, newest first.
func (sess *Session) ByKind(ctx context.Context, kind Kind) ([]Record, error) {
	rows, err := sess.store.db.Conn().QueryContext(ctx,
		`SELECT id, query_id, kind, content, created_by, created_at, metadata FROM memories
		 WHERE query_id = ? AND kind = ? ORDER BY id DESC`, sess.queryID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying memories by kind: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Latest returns the single newest record of kind, or (Record{}, false) if
// none exists. Used by the Context Assembler for the "single plan record
// (latest)" and "single feedback record (latest)" sections.
func (sess *Session) Latest(ctx context.Context, kind Kind) (Record, bool, error) {
	records, err := sess.ByKind(ctx, kind)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// Search embeds queryText and returns the limit records with lowest cosine
// distance within this session. With no loadable vector extension
// available, this scans the session's vectors in Go — acceptable
// at one research session's scale (tens to low hundreds of records).
func (sess *Session) Search(ctx context.Context, queryText string, limit int) ([]ScoredRecord, error) {
	vec, err := sess.store.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, &ErrEmbedderUnavailable{Cause: err}
	}

	rows, err := sess.store.db.Conn().QueryContext(ctx, `
		SELECT m.id, m.query_id, m.kind, m.content, m.created_by, m.created_at, m.metadata, v.embedding
		FROM memories m JOIN vec_memories v ON v.memory_id = m.id
		WHERE m.query_id = ?`, sess.queryID)
	if err != nil {
		return nil, fmt.Errorf("scanning memories for search: %w", err)
	}
	defer rows.Close()

	var scored []ScoredRecord
	for rows.Next() {
		var r Record
		var metaJSON string
		var kindStr string
		var embBlob []byte
		if err := rows.Scan(&r.ID, &r.QueryID, &kindStr, &r.Content, &r.CreatedBy, &r.CreatedAt, &metaJSON, &embBlob); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Kind = Kind(kindStr)
		r.Metadata = unmarshalMetadata(metaJSON)

		candidate, err := decodeVector(embBlob)
		if err != nil {
			return nil, &ErrInvariant{Detail: err.Error()}
		}

		scored = append(scored, ScoredRecord{Record: r, Distance: cosineDistance(vec, candidate)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// RecordToolCall appends an audit row. Never blocks Store/UpsertSingle —
// callers invoke it after the store call returns, not inside its lock.
func (sess *Session) RecordToolCall(ctx context.Context, agentRole, toolType, toolName string, params, result string, success bool) error {
	successInt := 0
	if success {
		successInt = 1
	}
	_, err := sess.store.db.Conn().ExecContext(ctx,
		`INSERT INTO tool_calls (query_id, agent_role, tool_type, tool_name, params, result, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.queryID, agentRole, toolType, toolName, params, result, successInt, coredb.NowUnix())
	if err != nil {
		return fmt.Errorf("recording tool call audit: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var metaJSON string
		var kindStr string
		if err := rows.Scan(&r.ID, &r.QueryID, &kindStr, &r.Content, &r.CreatedBy, &r.CreatedAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		r.Kind = Kind(kindStr)
		r.Metadata = unmarshalMetadata(metaJSON)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory rows: %w", err)
	}
	return records, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}
