package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// Supported distance metrics.
const (
	MetricCosine = "cos"
	MetricL2     = "l2"
)

// VectorConfig configures an HNSWVectorIndex.
type VectorConfig struct {
	// Path of the graph file. The metadata lives next to it with a ".meta"
	// suffix. Empty keeps the index in memory only.
	Path string

	Dimensions int
	Metric     string
	M          int
	EfSearch   int
}

// HNSWVectorIndex implements VectorIndex on coder/hnsw.
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap    map[domain.ChunkID]uint64
	keyMap   map[uint64]domain.ChunkID
	payloads map[domain.ChunkID]ChunkPayload
	byPage   map[domain.PageID]map[domain.ChunkID]struct{}
	nextKey  uint64

	closed bool
}

var (
	_ VectorIndex = (*HNSWVectorIndex)(nil)
	_ PageCounter = (*HNSWVectorIndex)(nil)
)

// hnswMetadata stores ID mappings and payloads for persistence.
type hnswMetadata struct {
	IDMap    map[domain.ChunkID]uint64
	Payloads map[domain.ChunkID]ChunkPayload
	NextKey  uint64
	Config   VectorConfig
}

// NewHNSWVectorIndex creates the index, loading it from cfg.Path when a saved
// graph exists there.
func NewHNSWVectorIndex(cfg VectorConfig) (*HNSWVectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, amerrors.ConfigError(fmt.Sprintf("vector dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWVectorIndex{
		graph:    newGraph(cfg),
		config:   cfg,
		idMap:    make(map[domain.ChunkID]uint64),
		keyMap:   make(map[uint64]domain.ChunkID),
		payloads: make(map[domain.ChunkID]ChunkPayload),
		byPage:   make(map[domain.PageID]map[domain.ChunkID]struct{}),
	}

	if cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			if err := s.load(); err != nil {
				return nil, amerrors.IndexError("vector", err).
					WithSuggestion("delete " + cfg.Path + " and re-run import")
			}
		}
	}
	return s, nil
}

func newGraph(cfg VectorConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricL2:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Upsert adds or replaces one chunk vector.
func (s *HNSWVectorIndex) Upsert(_ context.Context, id domain.ChunkID, vector []float32, payload ChunkPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return amerrors.IndexError("vector", fmt.Errorf("index is closed"))
	}
	if len(vector) != s.config.Dimensions {
		return amerrors.ValidationError(
			fmt.Sprintf("vector dimension mismatch: expected %d, got %d", s.config.Dimensions, len(vector)), nil)
	}

	// Replaced nodes stay in the graph as orphans; removing the last node of
	// a coder/hnsw graph corrupts it.
	s.forget(id)

	key := s.nextKey
	s.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(vec)
	}
	s.graph.Add(hnsw.MakeNode(key, vec))

	s.idMap[id] = key
	s.keyMap[key] = id
	s.payloads[id] = payload
	chunks, ok := s.byPage[payload.PageID]
	if !ok {
		chunks = make(map[domain.ChunkID]struct{})
		s.byPage[payload.PageID] = chunks
	}
	chunks[id] = struct{}{}
	return nil
}

// forget drops the mappings of id. Caller holds the write lock.
func (s *HNSWVectorIndex) forget(id domain.ChunkID) {
	key, ok := s.idMap[id]
	if !ok {
		return
	}
	delete(s.keyMap, key)
	delete(s.idMap, id)
	if p, ok := s.payloads[id]; ok {
		if chunks := s.byPage[p.PageID]; chunks != nil {
			delete(chunks, id)
			if len(chunks) == 0 {
				delete(s.byPage, p.PageID)
			}
		}
		delete(s.payloads, id)
	}
}

// DeleteByPage removes every chunk of a page.
func (s *HNSWVectorIndex) DeleteByPage(_ context.Context, id domain.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return amerrors.IndexError("vector", fmt.Errorf("index is closed"))
	}
	for chunk := range s.byPage[id] {
		s.forget(chunk)
	}
	return nil
}

// Search returns up to k nearest chunks.
func (s *HNSWVectorIndex) Search(_ context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, amerrors.IndexError("vector", fmt.Errorf("index is closed"))
	}
	if len(query) != s.config.Dimensions {
		return nil, amerrors.ValidationError(
			fmt.Sprintf("query dimension mismatch: expected %d, got %d", s.config.Dimensions, len(query)), nil)
	}
	if len(s.idMap) == 0 || k <= 0 {
		return []*VectorHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(q)
	}

	// Orphans can occupy result slots, so widen the search by their count.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, min(k+orphans, s.graph.Len()))

	hits := make([]*VectorHit, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		hits = append(hits, &VectorHit{
			ChunkID:  id,
			Payload:  s.payloads[id],
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Count returns the number of live vectors.
func (s *HNSWVectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// CountPage returns the number of live chunks of a page.
func (s *HNSWVectorIndex) CountPage(_ context.Context, id domain.PageID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, amerrors.IndexError("vector", fmt.Errorf("index is closed"))
	}
	return len(s.byPage[id]), nil
}

// Orphans returns the number of replaced or deleted nodes still in the graph.
func (s *HNSWVectorIndex) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.idMap)
}

// Save writes the graph and its metadata to the configured path using
// temp files and renames. It is a no-op for in-memory indexes.
func (s *HNSWVectorIndex) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return amerrors.IndexError("vector", fmt.Errorf("index is closed"))
	}
	if s.config.Path == "" {
		return nil
	}

	path := s.config.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return amerrors.IndexError("vector", fmt.Errorf("create directory: %w", err))
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return amerrors.IndexError("vector", fmt.Errorf("create index file: %w", err))
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return amerrors.IndexError("vector", fmt.Errorf("export graph: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return amerrors.IndexError("vector", fmt.Errorf("close index file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return amerrors.IndexError("vector", fmt.Errorf("rename index file: %w", err))
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return amerrors.IndexError("vector", fmt.Errorf("save metadata: %w", err))
	}
	return nil
}

func (s *HNSWVectorIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:    s.idMap,
		Payloads: s.payloads,
		NextKey:  s.nextKey,
		Config:   s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// load reads metadata then the graph. Caller must not hold the lock.
func (s *HNSWVectorIndex) load() error {
	file, err := os.Open(s.config.Path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	var meta hnswMetadata
	err = gob.NewDecoder(file).Decode(&meta)
	file.Close()
	if err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return fmt.Errorf("stored dimensions %d do not match configured %d",
			meta.Config.Dimensions, s.config.Dimensions)
	}

	graphFile, err := os.Open(s.config.Path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer graphFile.Close()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.payloads = meta.Payloads
	s.nextKey = meta.NextKey
	if s.idMap == nil {
		s.idMap = make(map[domain.ChunkID]uint64)
	}
	if s.payloads == nil {
		s.payloads = make(map[domain.ChunkID]ChunkPayload)
	}
	for id, key := range s.idMap {
		s.keyMap[key] = id
		p := s.payloads[id]
		chunks, ok := s.byPage[p.PageID]
		if !ok {
			chunks = make(map[domain.ChunkID]struct{})
			s.byPage[p.PageID] = chunks
		}
		chunks[id] = struct{}{}
	}
	return nil
}

// Close releases the graph. It does not save.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance to a 0..1 similarity.
// Cosine distance ranges 0..2; L2 ranges 0..inf.
func distanceToScore(distance float32, metric string) float32 {
	if metric == MetricL2 {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
