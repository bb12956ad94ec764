// Package localcache is the Local Draft Cache: the client-side store the
// draft session reads before touching the network. It keeps one Local
// Snapshot per draft key, overwritten in place, and an append-only list of
// Safety Backups. Payloads are optionally sealed with a passphrase-derived
// key.
package localcache

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/models"
	"github.com/dmitrijs2005/intakekeeper/internal/client/repositories/backups"
	"github.com/dmitrijs2005/intakekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/intakekeeper/internal/client/repositories/snapshots"
	"github.com/dmitrijs2005/intakekeeper/internal/cryptox"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/google/uuid"
)

var (
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
	ErrWrongPassphrase       = errors.New("wrong passphrase")
)

const (
	saltKey    = "cache_salt"
	checkKey   = "cache_check"
	checkPlain = "intakekeeper"
)

// Snapshot is a decoded Local Snapshot.
type Snapshot struct {
	Key         string
	Value       document.Document
	DraftID     string
	BaseVersion int64
	Pending     bool
	UpdatedAt   time.Time
}

// Backup is a decoded Safety Backup.
type Backup struct {
	ID        string
	FormKey   string
	Value     document.Document
	CreatedAt time.Time
}

type Cache struct {
	snapshots snapshots.Repository
	backups   backups.Repository
	key       []byte
	now       func() time.Time
	newID     func() string
}

func New(s snapshots.Repository, b backups.Repository) *Cache {
	return &Cache{
		snapshots: s,
		backups:   b,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Open binds a Cache to a migrated database.
func Open(db *sql.DB) *Cache {
	return New(snapshots.NewSQLiteRepository(db), backups.NewSQLiteRepository(db))
}

// Unlock derives the sealing key from passphrase. The salt and a check value
// are created in meta on first use; later calls with another passphrase fail
// with ErrWrongPassphrase.
func (c *Cache) Unlock(ctx context.Context, meta metadata.Repository, passphrase []byte) error {
	salt, err := meta.Get(ctx, saltKey)
	if err != nil {
		return err
	}

	if salt == nil {
		if salt, err = cryptox.NewSalt(); err != nil {
			return err
		}
		key := cryptox.DeriveKey(passphrase, salt)
		check, err := cryptox.Seal(key, []byte(checkPlain))
		if err != nil {
			return err
		}
		if err := meta.Set(ctx, saltKey, salt); err != nil {
			return err
		}
		if err := meta.Set(ctx, checkKey, check); err != nil {
			return err
		}
		c.key = key
		return nil
	}

	key := cryptox.DeriveKey(passphrase, salt)
	check, err := meta.Get(ctx, checkKey)
	if err != nil {
		return err
	}
	plain, err := cryptox.Open(key, check)
	if err != nil || !bytes.Equal(plain, []byte(checkPlain)) {
		return ErrWrongPassphrase
	}
	c.key = key
	return nil
}

func (c *Cache) encode(v document.Document) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if c.key == nil {
		return b, nil
	}
	return cryptox.Seal(c.key, b)
}

func (c *Cache) decode(b []byte) (document.Document, error) {
	if c.key != nil {
		plain, err := cryptox.Open(c.key, b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLocalDataNotAvailable, err)
		}
		b = plain
	}
	doc, err := document.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalDataNotAvailable, err)
	}
	return doc, nil
}

// Write overwrites the snapshot under s.Key. A zero UpdatedAt is set to now.
func (c *Cache) Write(ctx context.Context, s *Snapshot) error {
	data, err := c.encode(s.Value)
	if err != nil {
		return err
	}
	at := s.UpdatedAt
	if at.IsZero() {
		at = c.now()
	}
	return c.snapshots.Write(ctx, &models.Snapshot{
		Key:         s.Key,
		Data:        data,
		DraftID:     s.DraftID,
		BaseVersion: s.BaseVersion,
		Pending:     s.Pending,
		UpdatedAt:   at,
	})
}

// Read returns nil, nil when no snapshot exists under key.
func (c *Cache) Read(ctx context.Context, key string) (*Snapshot, error) {
	m, err := c.snapshots.Read(ctx, key)
	if err != nil || m == nil {
		return nil, err
	}
	v, err := c.decode(m.Data)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Key:         m.Key,
		Value:       v,
		DraftID:     m.DraftID,
		BaseVersion: m.BaseVersion,
		Pending:     m.Pending,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.snapshots.Delete(ctx, key)
}

// AppendBackup stores a new Safety Backup of v under formKey.
func (c *Cache) AppendBackup(ctx context.Context, formKey string, v document.Document) (*Backup, error) {
	data, err := c.encode(v)
	if err != nil {
		return nil, err
	}
	b := &models.Backup{ID: c.newID(), FormKey: formKey, Data: data, CreatedAt: c.now()}
	if err := c.backups.Append(ctx, b); err != nil {
		return nil, err
	}
	return &Backup{ID: b.ID, FormKey: formKey, Value: v.Clone(), CreatedAt: b.CreatedAt}, nil
}

// ListBackups returns the backups of formKey, newest first.
func (c *Cache) ListBackups(ctx context.Context, formKey string) ([]*Backup, error) {
	list, err := c.backups.ListByForm(ctx, formKey)
	if err != nil {
		return nil, err
	}
	out := make([]*Backup, 0, len(list))
	for _, m := range list {
		v, err := c.decode(m.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, &Backup{ID: m.ID, FormKey: m.FormKey, Value: v, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (c *Cache) GetBackup(ctx context.Context, id string) (*Backup, error) {
	m, err := c.backups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := c.decode(m.Data)
	if err != nil {
		return nil, err
	}
	return &Backup{ID: m.ID, FormKey: m.FormKey, Value: v, CreatedAt: m.CreatedAt}, nil
}
