// Package retrieve implements the knowledge-base retrieval tool: a
// sqlite-vec backed chunk index with a keyword-overlap fallback for when
// the embedding encoder or the vector extension is unavailable.
package retrieve

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/encoder"
)

func init() {
	vec.Auto()
}

// Chunk is one indexed document fragment.
type Chunk struct {
	ID      int64   `json:"id"`
	Source  string  `json:"source"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Index is the on-disk chunk store. Vector search requires the encoder
// used at build time; keyword search works without one.
type Index struct {
	db     *sql.DB
	enc    encoder.Engine
	logger *zap.Logger
}

// OpenIndex opens or creates an index file. enc may be nil, which
// disables vector search and indexing.
func OpenIndex(path string, enc encoder.Engine, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	idx := &Index{db: db, enc: enc, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database handle.
func (ix *Index) Close() error { return ix.db.Close() }

func (ix *Index) migrate() error {
	if _, err := ix.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			source  TEXT NOT NULL,
			title   TEXT NOT NULL,
			content TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	if ix.enc == nil {
		return nil
	}
	_, err := ix.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(embedding float[%d], chunk_id INTEGER)`,
		ix.enc.Dims()))
	if err != nil {
		// The extension may be missing from this build; keyword search
		// still works.
		ix.logger.Warn("vector table unavailable, keyword search only", zap.Error(err))
	}
	return nil
}

// BuildFromDir indexes every markdown and text file under dir, replacing
// any previous contents.
func (ix *Index) BuildFromDir(ctx context.Context, dir string) (int, error) {
	if ix.enc == nil {
		return 0, fmt.Errorf("indexing requires an embedding encoder")
	}
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	_, _ = ix.db.ExecContext(ctx, `DELETE FROM vec_chunks`)

	var total int
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		n, err := ix.addDocument(ctx, filepath.Base(path), string(data))
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		total += n
		return nil
	})
	if err != nil {
		return total, err
	}
	ix.logger.Info("index built", zap.String("dir", dir), zap.Int("chunks", total))
	return total, nil
}

func (ix *Index) addDocument(ctx context.Context, source, text string) (int, error) {
	chunks := splitChunks(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Title + "\n" + c.Content
	}
	vectors, err := ix.enc.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i, c := range chunks {
		res, err := ix.db.ExecContext(ctx,
			`INSERT INTO chunks (source, title, content) VALUES (?, ?, ?)`,
			source, c.Title, c.Content)
		if err != nil {
			return i, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return i, err
		}
		if _, err := ix.db.ExecContext(ctx,
			`INSERT INTO vec_chunks (embedding, chunk_id) VALUES (?, ?)`,
			encodeVector(vectors[i]), id); err != nil {
			return i, err
		}
	}
	return len(chunks), nil
}

// Search returns the k best chunks for the query. Vector search is
// preferred; on encoder or extension failure it falls back to keyword
// overlap scoring so retrieval never depends on a live embedding service.
func (ix *Index) Search(ctx context.Context, query string, keywords []string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 3
	}
	if ix.enc != nil {
		chunks, err := ix.vectorSearch(ctx, query, k)
		if err == nil {
			return chunks, nil
		}
		ix.logger.Warn("vector search failed, using keyword fallback", zap.Error(err))
	}
	return ix.keywordSearch(ctx, query, keywords, k)
}

func (ix *Index) vectorSearch(ctx context.Context, query string, k int) ([]Chunk, error) {
	qv, err := ix.enc.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := ix.db.QueryContext(ctx, `
		SELECT c.id, c.source, c.title, c.content,
		       vec_distance_cosine(v.embedding, ?) AS distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		ORDER BY distance ASC
		LIMIT ?`, encodeVector(qv), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var distance float64
		if err := rows.Scan(&c.ID, &c.Source, &c.Title, &c.Content, &distance); err != nil {
			return nil, err
		}
		c.Score = 1.0 - distance
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ix *Index) keywordSearch(ctx context.Context, query string, keywords []string, k int) ([]Chunk, error) {
	terms := map[string]struct{}{}
	for _, w := range tokenize(query) {
		terms[w] = struct{}{}
	}
	for _, w := range keywords {
		terms[strings.ToLower(w)] = struct{}{}
	}

	rows, err := ix.db.QueryContext(ctx, `SELECT id, source, title, content FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Title, &c.Content); err != nil {
			return nil, err
		}
		lower := strings.ToLower(c.Title + " " + c.Content)
		for term := range terms {
			if len(term) > 2 && strings.Contains(lower, term) {
				c.Score++
			}
		}
		if c.Score > 0 {
			scored = append(scored, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Highest overlap first, stable on id for determinism.
	for i := 0; i < len(scored); i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].Score > scored[i].Score ||
				(scored[j].Score == scored[i].Score && scored[j].ID < scored[i].ID) {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// splitChunks breaks a document on markdown headings, carrying the most
// recent heading as each chunk's title.
func splitChunks(text string) []Chunk {
	var out []Chunk
	title := ""
	var buf strings.Builder

	flush := func() {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		if body != "" {
			out = append(out, Chunk{Title: title, Content: body})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			title = strings.TrimSpace(strings.TrimLeft(line, "# "))
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}
