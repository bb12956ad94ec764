package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/client"
	"github.com/dmitrijs2005/intakekeeper/internal/client/localcache"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultDebounce       = 2 * time.Second
	DefaultBackupInterval = 5 * time.Minute
	DefaultRetryDelay     = 5 * time.Second
	DefaultMinBackupKeys  = 3
	DefaultKeyField       = "clientName"
)

var (
	ErrConflictPending = errors.New("unresolved conflict")
	ErrNoConflict      = errors.New("no conflict to resolve")
	ErrClosed          = errors.New("session closed")
)

// RemoteStore is the server side of the session.
type RemoteStore interface {
	Save(ctx context.Context, req client.SaveRequest) (*client.SaveResult, error)
	Fetch(ctx context.Context, draftID string) (*client.Draft, error)
	FetchLatest(ctx context.Context) (*client.Draft, error)
}

type Cache interface {
	Read(ctx context.Context, key string) (*localcache.Snapshot, error)
	Write(ctx context.Context, s *localcache.Snapshot) error
}

type BackupStore interface {
	AppendBackup(ctx context.Context, formKey string, v document.Document) (*localcache.Backup, error)
}

// Timer is the part of *time.Timer the session uses.
type Timer interface {
	Stop() bool
}

type Options struct {
	// Key names the local snapshot and the backups of this form.
	Key string
	// DraftID, when set, is fetched instead of the actor's latest draft.
	DraftID        string
	Debounce       time.Duration
	BackupInterval time.Duration
	RetryDelay     time.Duration
	// KeyField is the identity field that makes a form worth backing up.
	KeyField      string
	MinBackupKeys int
	// Defaults is the empty form used when neither source has a draft.
	Defaults document.Document
	// Listener is called after every state change, outside the lock.
	Listener func(State)
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.BackupInterval <= 0 {
		o.BackupInterval = DefaultBackupInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.KeyField == "" {
		o.KeyField = DefaultKeyField
	}
	if o.MinBackupKeys <= 0 {
		o.MinBackupKeys = DefaultMinBackupKeys
	}
	return o
}

// State is a copy of the session state.
type State struct {
	Value                  document.Document
	DraftID                string
	Version                int64
	HasUnsavedChanges      bool
	LastSaved              time.Time
	IsConflict             bool
	IsLoadingInitial       bool
	ConflictingServerValue document.Document
	ConflictingVersion     int64
	LastError              error
}

type Session struct {
	remote  RemoteStore
	cache   Cache
	backups BackupStore
	log     logging.Logger
	opts    Options

	afterFunc func(time.Duration, func()) Timer
	now       func() time.Time
	newID     func() string

	// saveMu serializes save cycles; mu guards everything below.
	saveMu sync.Mutex
	mu     sync.Mutex

	value       document.Document
	draftID     string
	version     int64
	dirty       bool
	edits       uint64
	lastSaved   time.Time
	conflict    bool
	serverValue document.Document
	serverVer   int64
	loading     bool
	lastErr     error
	saveID      string
	sentEdits   uint64
	timer       Timer
	closed      bool

	ctx         context.Context
	cancel      context.CancelFunc
	stopBackups context.CancelFunc
	wg          sync.WaitGroup
}

func New(remote RemoteStore, cache Cache, backups BackupStore, log logging.Logger, opts Options) *Session {
	if log == nil {
		log = logging.Nop{}
	}
	return &Session{
		remote:  remote,
		cache:   cache,
		backups: backups,
		log:     log.With("module", "draft", "key", opts.Key),
		opts:    opts.withDefaults(),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:     time.Now,
		newID:   uuid.NewString,
		loading: true,
		version: 1,
		ctx:     context.Background(),
	}
}

// Open loads the session and starts the safety-backup loop. Timers fired
// after Open run with a context that Close cancels.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	backupCtx, stop := context.WithCancel(s.ctx)
	s.stopBackups = stop
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backupLoop(backupCtx)
	}()
	return nil
}

// Close stops the timers, waits for an in-flight save and writes the current
// value to the local cache. The in-flight save is not cancelled.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	if s.stopBackups != nil {
		s.stopBackups()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	loaded := !s.loading
	snap := s.snapshotLocked(s.dirty)
	s.mu.Unlock()

	if !loaded {
		return nil
	}
	return s.cache.Write(ctx, snap)
}

// Load runs the initial load: the local snapshot wins without a network
// call; otherwise the server draft, otherwise Defaults.
func (s *Session) Load(ctx context.Context) error {
	snap, err := s.cache.Read(ctx, s.opts.Key)
	if err != nil {
		s.log.Warn(ctx, "local snapshot unreadable", "error", err)
	}
	if snap != nil {
		s.mu.Lock()
		s.value = snap.Value.Clone()
		s.draftID = snap.DraftID
		s.version = snap.BaseVersion
		if s.version == 0 {
			s.version = 1
		}
		s.dirty = snap.Pending
		s.loading = false
		if s.dirty {
			s.armLocked(s.opts.Debounce)
		}
		st := s.stateLocked()
		s.mu.Unlock()

		s.log.Debug(ctx, "loaded local snapshot", "draft_id", snap.DraftID, "pending", snap.Pending)
		s.emit(st)
		return nil
	}

	var d *client.Draft
	if s.opts.DraftID != "" {
		d, err = s.remote.Fetch(ctx, s.opts.DraftID)
	} else {
		d, err = s.remote.FetchLatest(ctx)
	}
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.mu.Lock()
		s.lastErr = err
		st := s.stateLocked()
		s.mu.Unlock()
		s.emit(st)
		return fmt.Errorf("load draft: %w", err)
	}

	s.mu.Lock()
	if d != nil {
		s.value = d.Data.Clone()
		s.draftID = d.ID
		s.version = d.Version
		s.lastSaved = d.UpdatedAt
	} else {
		s.value = s.opts.Defaults.Clone()
		s.draftID = ""
		s.version = 1
	}
	s.dirty = false
	s.loading = false
	s.lastErr = nil
	st := s.stateLocked()
	s.mu.Unlock()

	s.log.Debug(ctx, "loaded draft", "draft_id", st.DraftID, "version", st.Version)
	s.emit(st)
	return nil
}

// Set merges patch into the value. It never fails.
func (s *Session) Set(patch document.Document) {
	s.mu.Lock()
	s.value = document.Merge(s.value, patch)
	s.dirty = true
	s.edits++
	if !s.conflict {
		s.armLocked(s.opts.Debounce)
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.emit(st)
}

// Flush runs a save cycle now and returns its error.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	return s.cycle(ctx)
}

func (s *Session) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.cycle(ctx); err != nil && !errors.Is(err, ErrConflictPending) && !errors.Is(err, ErrClosed) {
		s.log.Debug(ctx, "autosave failed", "error", err, "class", common.Classify(err).String())
	}
}

// cycle is one autosave: snapshot, remote save, apply the outcome.
func (s *Session) cycle(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.conflict:
		s.mu.Unlock()
		return ErrConflictPending
	case !s.dirty || s.loading:
		s.mu.Unlock()
		return nil
	}
	if s.saveID == "" {
		s.saveID = s.newID()
		s.sentEdits = s.edits
	}
	req := client.SaveRequest{DraftID: s.draftID, Value: s.value.Clone(), SaveID: s.saveID}
	if s.draftID != "" {
		v := s.version
		req.ExpectedVersion = &v
	}
	edits := s.edits
	snap := s.snapshotLocked(true)
	s.mu.Unlock()

	if err := s.cache.Write(ctx, snap); err != nil {
		s.log.Warn(ctx, "local snapshot write failed", "error", err)
	}

	res, err := s.remote.Save(ctx, req)

	switch common.Classify(err) {
	case common.ClassNone:
		s.mu.Lock()
		s.draftID = res.DraftID
		s.version = res.Version
		s.saveID = ""
		s.lastErr = nil
		s.lastSaved = s.now()
		// A replay confirms only the value first sent under this save id.
		confirmed := edits
		if res.Replayed {
			confirmed = s.sentEdits
		}
		s.dirty = s.edits != confirmed
		if res.Replayed && s.dirty {
			s.armLocked(s.opts.Debounce)
		}
		snap := s.snapshotLocked(s.dirty)
		st := s.stateLocked()
		s.mu.Unlock()

		if err := s.cache.Write(ctx, snap); err != nil {
			s.log.Warn(ctx, "local snapshot write failed", "error", err)
		}
		s.log.Debug(ctx, "draft saved", "draft_id", res.DraftID, "version", res.Version, "replayed", res.Replayed)
		s.emit(st)
		return nil

	case common.ClassConflict:
		s.mu.Lock()
		s.conflict = true
		s.saveID = ""
		s.lastErr = err
		s.stopTimerLocked()
		id := s.draftID
		s.mu.Unlock()

		s.log.Info(ctx, "version conflict", "draft_id", id, "error", err)
		s.fetchServerCopy(ctx, id)
		return err

	case common.ClassTransient:
		s.mu.Lock()
		s.lastErr = err
		s.armLocked(s.opts.RetryDelay)
		st := s.stateLocked()
		s.mu.Unlock()

		s.log.Debug(ctx, "save deferred", "error", err, "retry_in", s.opts.RetryDelay)
		s.emit(st)
		return err

	default:
		s.mu.Lock()
		s.lastErr = err
		s.saveID = ""
		st := s.stateLocked()
		s.mu.Unlock()

		s.log.Error(ctx, "save rejected", "error", err, "class", common.Classify(err).String())
		s.emit(st)
		return err
	}
}

func (s *Session) fetchServerCopy(ctx context.Context, id string) {
	d, err := s.remote.Fetch(ctx, id)

	s.mu.Lock()
	if err != nil {
		s.log.Warn(ctx, "fetch of server copy failed", "draft_id", id, "error", err)
		s.lastErr = err
	} else if d != nil {
		s.serverValue = d.Data.Clone()
		s.serverVer = d.Version
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.emit(st)
}

// Choice picks how a conflict is resolved.
type Choice int

const (
	// DiscardLocal replaces the value with the server copy.
	DiscardLocal Choice = iota
	// ManualMerge keeps Resolution.Merged and saves it against the server's
	// current version.
	ManualMerge
)

type Resolution struct {
	Choice Choice
	Merged document.Document
}

// ResolveConflict leaves the conflict state. It fails with ErrNoConflict
// when there is none.
func (s *Session) ResolveConflict(ctx context.Context, r Resolution) error {
	s.mu.Lock()
	if !s.conflict {
		s.mu.Unlock()
		return ErrNoConflict
	}
	id := s.draftID
	s.mu.Unlock()

	switch r.Choice {
	case DiscardLocal:
		s.mu.Lock()
		server, ver := s.serverValue, s.serverVer
		s.mu.Unlock()

		if server == nil {
			d, err := s.remote.Fetch(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch server copy: %w", err)
			}
			if d == nil {
				return fmt.Errorf("fetch server copy: %w", common.ErrorNotFound)
			}
			server, ver = d.Data, d.Version
		}

		s.mu.Lock()
		s.value = server.Clone()
		s.version = ver
		s.dirty = false
		s.edits++
		s.clearConflictLocked()
		snap := s.snapshotLocked(false)
		st := s.stateLocked()
		s.mu.Unlock()

		if err := s.cache.Write(ctx, snap); err != nil {
			s.log.Warn(ctx, "local snapshot write failed", "error", err)
		}
		s.log.Info(ctx, "conflict resolved", "choice", "discard_local", "version", ver)
		s.emit(st)
		return nil

	case ManualMerge:
		d, err := s.remote.Fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch server version: %w", err)
		}
		if d == nil {
			return fmt.Errorf("fetch server version: %w", common.ErrorNotFound)
		}

		s.mu.Lock()
		s.value = r.Merged.Clone()
		s.version = d.Version
		s.dirty = true
		s.edits++
		s.clearConflictLocked()
		s.armLocked(s.opts.Debounce)
		st := s.stateLocked()
		s.mu.Unlock()

		s.log.Info(ctx, "conflict resolved", "choice", "manual_merge", "version", d.Version)
		s.emit(st)
		return nil

	default:
		return fmt.Errorf("unknown resolution %d", r.Choice)
	}
}

// ConfirmDiscard is the exit guard: it returns common.ErrUnsavedChanges
// while local edits are not confirmed by the server.
func (s *Session) ConfirmDiscard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		return common.ErrUnsavedChanges
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Backup appends a safety backup when the form holds meaningful content.
// It reports whether one was written.
func (s *Session) Backup(ctx context.Context) (bool, error) {
	s.mu.Lock()
	v := s.value.Clone()
	loading := s.loading
	s.mu.Unlock()

	if loading || !s.meaningful(v) {
		return false, nil
	}
	b, err := s.backups.AppendBackup(ctx, s.opts.Key, v)
	if err != nil {
		return false, err
	}
	s.log.Debug(ctx, "safety backup written", "backup_id", b.ID)
	return true, nil
}

func (s *Session) backupLoop(ctx context.Context) {
	t := time.NewTicker(s.opts.BackupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Backup(ctx); err != nil {
				s.log.Warn(ctx, "safety backup failed", "error", err)
			}
		}
	}
}

func (s *Session) meaningful(v document.Document) bool {
	if v.String(s.opts.KeyField) != "" {
		return true
	}
	n := 0
	for _, val := range v {
		if filled(val) {
			n++
		}
	}
	return n >= s.opts.MinBackupKeys
}

// filled reports whether val differs from a field's empty default.
func filled(val any) bool {
	switch t := val.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func (s *Session) armLocked(d time.Duration) {
	s.stopTimerLocked()
	if s.closed {
		return
	}
	s.timer = s.afterFunc(d, s.fire)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) clearConflictLocked() {
	s.conflict = false
	s.serverValue = nil
	s.serverVer = 0
	s.lastErr = nil
}

func (s *Session) snapshotLocked(pending bool) *localcache.Snapshot {
	return &localcache.Snapshot{
		Key:         s.opts.Key,
		Value:       s.value.Clone(),
		DraftID:     s.draftID,
		BaseVersion: s.version,
		Pending:     pending,
		UpdatedAt:   s.now(),
	}
}

func (s *Session) stateLocked() State {
	st := State{
		Value:             s.value.Clone(),
		DraftID:           s.draftID,
		Version:           s.version,
		HasUnsavedChanges: s.dirty,
		LastSaved:         s.lastSaved,
		IsConflict:        s.conflict,
		IsLoadingInitial:  s.loading,
		LastError:         s.lastErr,
	}
	if s.serverValue != nil {
		st.ConflictingServerValue = s.serverValue.Clone()
		st.ConflictingVersion = s.serverVer
	}
	return st
}

func (s *Session) emit(st State) {
	if s.opts.Listener != nil {
		s.opts.Listener(st)
	}
}
