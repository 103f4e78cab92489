package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	_ "modernc.org/sqlite"
)

type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type Match struct {
	Document
	Distance float64 `json:"distance"`
}

type Edge struct {
	SourceID string `json:"source"`
	TargetID string `json:"target"`
	Type     string `json:"type"`
}

// Filter selects documents for deletion. An empty filter selects nothing unless All is set.
type Filter struct {
	IDs      []string
	Contains string
	All      bool
}

type VectorStore interface {
	Add(ctx context.Context, docs ...Document) error
	Query(ctx context.Context, text string, k int) ([]Match, error)
	Get(ctx context.Context, ids ...string) ([]Document, error)
	Delete(ctx context.Context, f Filter) (int, error)
	AddEdge(ctx context.Context, e Edge) error
	Edges(ctx context.Context) ([]Edge, error)
	Close() error
}

// SQLiteStore keeps documents, their embeddings and relationship edges in sqlite
// and ranks by cosine distance in process.
type SQLiteStore struct {
	db       *sql.DB
	embedder embeddings.Embedder
}

func NewSQLiteStore(dbPath string, embedder embeddings.Embedder) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed: got %d vectors for %d documents", len(vecs), len(docs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, content, metadata, embedding, created_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, embedding = excluded.embedding`,
			d.ID, d.Content, string(meta), encodeVector(vecs[i]), now)
		if err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query returns the k nearest documents to text, closest first.
func (s *SQLiteStore) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	q, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0)
	for rows.Next() {
		var doc Document
		var meta string
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		matches = append(matches, Match{Document: doc, Distance: CosineDistance(q, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns the documents with the given ids, or every document when none are given.
func (s *SQLiteStore) Get(ctx context.Context, ids ...string) ([]Document, error) {
	query := `SELECT id, content, metadata FROM memories`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var doc Document
		var meta string
		if err := rows.Scan(&doc.ID, &doc.Content, &meta); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, f Filter) (int, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case f.All:
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories`)
		if err == nil {
			_, err = s.db.ExecContext(ctx, `DELETE FROM relationships`)
		}
	case len(f.IDs) > 0:
		args := make([]any, len(f.IDs))
		for i, id := range f.IDs {
			args[i] = id
		}
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders(len(f.IDs))+`)`, args...)
	case f.Contains != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE instr(content, ?) > 0`, f.Contains)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) AddEdge(ctx context.Context, e Edge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (source_id, target_id, type, created_at) VALUES (?, ?, ?, ?)`,
		e.SourceID, e.TargetID, e.Type, time.Now())
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Edges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, target_id, type FROM relationships ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	edges := make([]Edge, 0)
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
