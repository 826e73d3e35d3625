package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/intellinote/intellinote/internal/domain"
)

// Node is one indexed chunk: text, provenance metadata, and its embedding.
type Node struct {
	ID        string               `json:"id"`
	Text      string               `json:"text"`
	Metadata  domain.ChunkMetadata `json:"metadata"`
	Embedding []float32            `json:"embedding"`
}

// NewNode wraps an embedded chunk as an index node.
func NewNode(c *domain.Chunk) Node {
	return Node{
		ID:        uuid.New().String(),
		Text:      c.Text,
		Metadata:  c.Metadata,
		Embedding: c.Embedding,
	}
}

// Store manages per-notebook index partitions on disk. Each notebook owns a
// directory under the store root with a single nodes file. All writers to the
// same notebook must go through Update, which holds the notebook's lock for
// the whole load-modify-persist cycle; writes to different notebooks proceed
// independently.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const nodesFile = "nodes.json"

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index root: %w", err)
	}
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) notebookLock(notebookID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[notebookID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[notebookID] = l
	}
	return l
}

func (s *Store) nodesPath(notebookID string) string {
	return filepath.Join(s.root, notebookID, nodesFile)
}

// HasPartition reports whether the notebook has a persisted partition. A
// READY document whose notebook lacks one is a zombie that needs re-ingestion.
func (s *Store) HasPartition(notebookID string) bool {
	_, err := os.Stat(s.nodesPath(notebookID))
	return err == nil
}

// LoadOrCreate opens a snapshot of the notebook's partition, reading
// persisted nodes if present and starting empty otherwise. The snapshot is
// not synchronized with other writers; mutations that must reach disk go
// through Update, which serializes the whole read-modify-write per notebook.
func (s *Store) LoadOrCreate(notebookID string) (*Partition, error) {
	lock := s.notebookLock(notebookID)
	lock.Lock()
	defer lock.Unlock()
	return s.load(notebookID)
}

// Update runs fn against the notebook's partition and persists the result,
// holding the notebook lock for the entire cycle. Two documents ingesting
// into the same notebook therefore cannot overwrite each other's nodes. When
// fn returns an error nothing is persisted.
func (s *Store) Update(notebookID string, fn func(*Partition) error) error {
	lock := s.notebookLock(notebookID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.load(notebookID)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return p.Persist()
}

func (s *Store) load(notebookID string) (*Partition, error) {
	p := &Partition{
		notebookID: notebookID,
		dir:        filepath.Join(s.root, notebookID),
	}

	data, err := os.ReadFile(s.nodesPath(notebookID))
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read partition: %w", err)
	}

	var file partitionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode partition: %w", err)
	}
	p.nodes = file.Nodes
	return p, nil
}

type partitionFile struct {
	Nodes []Node `json:"nodes"`
}

// Partition is the in-memory working copy of one notebook's index. It is not
// safe for concurrent use; the Store hands each caller its own copy and
// serializes persisted writes per notebook.
type Partition struct {
	notebookID string
	dir        string
	nodes      []Node
}

func (p *Partition) NotebookID() string { return p.notebookID }

func (p *Partition) Len() int { return len(p.nodes) }

func (p *Partition) InsertNodes(nodes []Node) {
	p.nodes = append(p.nodes, nodes...)
}

// DeleteByDocument drops every node belonging to the document and returns
// how many were removed.
func (p *Partition) DeleteByDocument(documentID string) int {
	kept := p.nodes[:0]
	removed := 0
	for _, n := range p.nodes {
		if n.Metadata.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	p.nodes = kept
	return removed
}

// NodesForDocument returns the document's nodes, ordered as stored.
func (p *Partition) NodesForDocument(documentID string) []Node {
	var out []Node
	for _, n := range p.nodes {
		if n.Metadata.DocumentID == documentID {
			out = append(out, n)
		}
	}
	return out
}

// Persist writes the partition to disk via temp file and atomic rename, so a
// crash mid-write never corrupts the previous snapshot. Persisting a detached
// snapshot is last-writer-wins; Update is the race-free path.
func (p *Partition) Persist() error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition dir: %w", err)
	}

	data, err := json.Marshal(partitionFile{Nodes: p.nodes})
	if err != nil {
		return fmt.Errorf("failed to encode partition: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, ".nodes-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write partition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(p.dir, nodesFile)); err != nil {
		return fmt.Errorf("failed to replace partition: %w", err)
	}
	return nil
}
