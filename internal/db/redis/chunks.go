package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/citedex/internal/db"
)

const hnswM = 32
const hnswEFConstruct = 400

// EnsureReady creates the FT vector index for chunk hashes if it is missing.
func (s *Store) EnsureReady(ctx context.Context, vectorDim int) error {
	if vectorDim <= 0 {
		return fmt.Errorf("vector dim must be positive, got %d", vectorDim)
	}

	args := []string{
		s.indexName(), "ON", "HASH",
		"PREFIX", "1", s.prefix + "chunk:",
		"SCHEMA",
		"document_id", "TAG",
		"version", "TAG",
		"active", "TAG",
		"seq", "NUMERIC", "SORTABLE",
		"vector", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(vectorDim),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(hnswM),
		"EF_CONSTRUCTION", strconv.Itoa(hnswEFConstruct),
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("FT.CREATE: %w", err)
	}
	return nil
}

// NextSeq returns the next monotonic ingestion sequence number.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	cmd := s.b().Incr().Key(s.seqKey()).Build()
	seq, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("INCR: %w", err)
	}
	return seq, nil
}

// UpsertChunk writes a chunk's vector and metadata as a single HSET, so the
// chunk becomes visible to FT.SEARCH atomically.
func (s *Store) UpsertChunk(ctx context.Context, rec db.ChunkRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("chunk id is required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("chunk vector is required")
	}

	args := []string{
		s.chunkKey(rec.ID),
		"id", rec.ID,
		"document_id", rec.DocumentID,
		"document_name", rec.DocumentName,
		"version", rec.Version,
		"section", rec.Section,
		"ordinal", strconv.Itoa(rec.Ordinal),
		"seq", strconv.FormatInt(rec.Seq, 10),
		"active", activeTag(rec.Active),
		"text", rec.Text,
		"vector", vectorToBytes(rec.Vector),
	}

	cmd := s.b().Arbitrary("HSET").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("HSET chunk: %w", err)
	}

	cmd = s.b().Sadd().Key(s.docChunksKey(rec.DocumentID)).Member(rec.ID).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("SADD doc chunks: %w", err)
	}
	return nil
}

// QueryKNN runs a KNN vector similarity search via FT.SEARCH. Returns an
// empty slice when no chunk satisfies the filter.
func (s *Store) QueryKNN(
	ctx context.Context, vector []float32, topK int, f db.ChunkFilter,
) ([]db.ChunkHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB]", topK)
	queryStr := "*=>" + knnPart
	if filterStr := buildFilter(f); filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{
		s.indexName(), queryStr,
		"RETURN", "9",
		"id", "document_id", "document_name", "version", "section",
		"ordinal", "seq", "text", "__vector_score",
		"LIMIT", "0", strconv.Itoa(topK),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil
		}
		return nil, fmt.Errorf("FT.SEARCH: %w", err)
	}

	return parseKNNResult(raw)
}

// SetChunksActive flips the active tag on every chunk of the given document
// and returns the number of chunks touched.
func (s *Store) SetChunksActive(ctx context.Context, documentID string, active bool) (int, error) {
	cmd := s.b().Smembers().Key(s.docChunksKey(documentID)).Build()
	ids, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("SMEMBERS doc chunks: %w", err)
	}

	for _, id := range ids {
		cmd := s.b().Arbitrary("HSET").Args(s.chunkKey(id), "active", activeTag(active)).Build()
		if err := s.do(ctx, cmd).Error(); err != nil {
			return 0, fmt.Errorf("HSET chunk active: %w", err)
		}
	}
	return len(ids), nil
}

func activeTag(active bool) string {
	if active {
		return "1"
	}
	return "0"
}

// buildFilter translates a ChunkFilter into an FT.SEARCH pre-filter string.
func buildFilter(f db.ChunkFilter) string {
	var parts []string
	if f.ActiveOnly {
		parts = append(parts, "@active:{1}")
	}
	if f.Version != "" {
		parts = append(parts, fmt.Sprintf("@version:{%s}", tagEscaper.Replace(f.Version)))
	}
	return strings.Join(parts, " ")
}

func parseKNNResult(raw []rueidis.RedisMessage) ([]db.ChunkHit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]db.ChunkHit, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		fieldsArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldsArr)

		hit := db.ChunkHit{
			ChunkRecord: db.ChunkRecord{
				ID:           fields["id"],
				DocumentID:   fields["document_id"],
				DocumentName: fields["document_name"],
				Version:      fields["version"],
				Section:      fields["section"],
				Active:       true, // filtered hits are active by construction
				Text:         fields["text"],
			},
		}
		if v, err := strconv.Atoi(fields["ordinal"]); err == nil {
			hit.Ordinal = v
		}
		if v, err := strconv.ParseInt(fields["seq"], 10, 64); err == nil {
			hit.Seq = v
		}
		if dist, err := strconv.ParseFloat(fields["__vector_score"], 64); err == nil {
			hit.Score = max(0, 1.0-dist) // cosine distance → similarity, clamped to [0,1]
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
