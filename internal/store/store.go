// Package store persists the serialized graph blob and its fetch metadata
// between runs in an embedded bbolt database.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
)

var (
	bucketGraph      = []byte("graph")
	bucketMeta       = []byte("meta")
	bucketTranslator = []byte("translator")

	keyBlob     = []byte("blob")
	keyMetadata = []byte("metadata")
	keyState    = []byte("state")
)

// Metadata describes the fetch that produced the stored graph.
type Metadata struct {
	FetchedAt  time.Time                       `json:"fetched_at"`
	Connectors []connectors.Namespace          `json:"connectors"`
	Prefixes   map[connectors.Namespace]string `json:"prefixes"`
	Stats      map[string]int                  `json:"stats,omitempty"`
}

// Store wraps the bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening graph store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGraph, bucketMeta, bucketTranslator} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveGraph replaces the stored blob and metadata.
func (s *Store) SaveGraph(g *graph.Graph, meta Metadata) error {
	blob, err := g.MarshalBlob()
	if err != nil {
		return err
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketGraph).Put(keyBlob, blob); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyMetadata, metaBytes)
	})
}

// LoadGraph reads the stored graph back. ok is false when no fetch has
// ever run.
func (s *Store) LoadGraph() (g *graph.Graph, meta Metadata, ok bool, err error) {
	var blob, metaBytes []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketGraph).Get(keyBlob); v != nil {
			blob = append([]byte(nil), v...)
		}
		if v := tx.Bucket(bucketMeta).Get(keyMetadata); v != nil {
			metaBytes = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, Metadata{}, false, err
	}
	if blob == nil {
		return nil, Metadata{}, false, nil
	}
	g, err = graph.FromBlob(blob)
	if err != nil {
		return nil, Metadata{}, false, err
	}
	if metaBytes != nil {
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			return nil, Metadata{}, false, err
		}
	}
	return g, meta, true, nil
}

// SaveTranslator persists the translator's name bindings.
func (s *Store) SaveTranslator(state translator.State) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTranslator).Put(keyState, encoded)
	})
}

// LoadTranslator rebuilds the persisted translator. ok is false when no
// fetch has ever run.
func (s *Store) LoadTranslator() (*translator.Translator, bool, error) {
	var encoded []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTranslator).Get(keyState); v != nil {
			encoded = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if encoded == nil {
		return nil, false, nil
	}
	var state translator.State
	if err := json.Unmarshal(encoded, &state); err != nil {
		return nil, false, err
	}
	return translator.FromState(state), true, nil
}
