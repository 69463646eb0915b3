// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package snapshot persists catalog snapshots in a common.Storage backend
// and selects which two snapshots a cycle compares.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/catalog"
	"github.com/jeremyhahn/carwatch/pkg/common"
)

const contentType = "application/json"

// Info describes a stored snapshot without loading it.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Store is an append-only snapshot store. It never deletes.
type Store struct {
	storage common.Storage
	ranking Ranking
	loc     *time.Location
	logger  adapters.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRanking selects how the most recent snapshot is determined.
func WithRanking(r Ranking) Option {
	return func(s *Store) { s.ranking = r }
}

// WithLocation sets the time zone used for snapshot names.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger adapters.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over storage.
func New(storage common.Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, common.ErrStorageRequired
	}
	s := &Store{
		storage: storage,
		ranking: RankByCreation,
		loc:     time.Local,
		logger:  adapters.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ranking returns the ranking in effect.
func (s *Store) Ranking() Ranking {
	return s.ranking
}

// Save writes raw verbatim under a key derived from at. A second save
// within the same second replaces the first.
func (s *Store) Save(ctx context.Context, raw []byte, at time.Time) (string, error) {
	at = at.In(s.loc)
	id := KeyFor(at)
	meta := &common.Metadata{
		ContentType: contentType,
		Size:        int64(len(raw)),
		Custom:      map[string]string{"captured_at": at.Format(time.RFC3339)},
	}
	if err := s.storage.Put(ctx, id, bytes.NewReader(raw), meta); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", id, err)
	}
	s.logger.Info(ctx, "Saved snapshot",
		adapters.Field{Key: "snapshot", Value: id},
		adapters.Field{Key: "bytes", Value: len(raw)},
	)
	return id, nil
}

// List returns every stored snapshot, most recent first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	objects, err := s.storage.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	infos := make([]Info, 0, len(objects))
	for _, obj := range objects {
		if obj == nil || !IsSnapshotKey(obj.Key) {
			continue
		}
		info := Info{ID: obj.Key}
		if obj.Metadata != nil {
			info.CreatedAt = obj.Metadata.Created()
			info.Size = obj.Metadata.Size
		}
		infos = append(infos, info)
	}
	s.ranking.rank(infos, s.loc)
	return infos, nil
}

// Latest returns up to n snapshot ids, most recent first.
func (s *Store) Latest(ctx context.Context, n int) ([]string, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(infos) > n {
		infos = infos[:n]
	}
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids, nil
}

// MostRecent returns the id of the most recent snapshot other than
// excluding, or "" when there is none.
func (s *Store) MostRecent(ctx context.Context, excluding string) (string, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.ID != excluding {
			return info.ID, nil
		}
	}
	return "", nil
}

// LoadMostRecent loads the most recent snapshot other than excluding. It
// returns nil and no error when no other snapshot exists.
func (s *Store) LoadMostRecent(ctx context.Context, excluding string) (*catalog.Snapshot, error) {
	id, err := s.MostRecent(ctx, excluding)
	if err != nil || id == "" {
		return nil, err
	}
	return s.Load(ctx, id)
}

// LoadRaw returns the payload stored under id.
func (s *Store) LoadRaw(ctx context.Context, id string) ([]byte, error) {
	if !IsSnapshotKey(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	raw, err := common.ReadAll(ctx, s.storage, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return raw, nil
}

// Load reads and parses the snapshot stored under id.
func (s *Store) Load(ctx context.Context, id string) (*catalog.Snapshot, error) {
	raw, err := s.LoadRaw(ctx, id)
	if err != nil {
		return nil, err
	}

	var created time.Time
	meta, err := s.storage.GetMetadata(ctx, id)
	switch {
	case err == nil:
		created = meta.Created()
	case errors.Is(err, common.ErrKeyNotFound), errors.Is(err, common.ErrMetadataNotFound):
	default:
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	if created.IsZero() {
		if t, perr := ParseKey(id, s.loc); perr == nil {
			created = t
		}
	}

	snap, err := catalog.NewSnapshot(id, created, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, id, err)
	}
	return snap, nil
}

// ResolvePair fills in the missing ids of a comparison. With neither id
// given it picks the two most recent snapshots. Without to it picks the
// most recent snapshot other than from. Without from it picks the snapshot
// ranked directly below to.
func (s *Store) ResolvePair(ctx context.Context, from, to string) (string, string, error) {
	if from != "" && to != "" {
		return from, to, nil
	}
	infos, err := s.List(ctx)
	if err != nil {
		return "", "", err
	}

	switch {
	case from == "" && to == "":
		if len(infos) < 2 {
			return "", "", ErrNotEnoughSnapshots
		}
		return infos[1].ID, infos[0].ID, nil
	case to == "":
		for _, info := range infos {
			if info.ID != from {
				return from, info.ID, nil
			}
		}
		return "", "", ErrNotEnoughSnapshots
	default:
		for i, info := range infos {
			if info.ID != to {
				continue
			}
			if i+1 < len(infos) {
				return infos[i+1].ID, to, nil
			}
			return "", "", ErrNotEnoughSnapshots
		}
		return "", "", fmt.Errorf("%w: %s", common.ErrKeyNotFound, to)
	}
}
