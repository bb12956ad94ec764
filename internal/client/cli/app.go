package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/client/client"
	"github.com/dmitrijs2005/intakekeeper/internal/client/config"
	"github.com/dmitrijs2005/intakekeeper/internal/client/draft"
	"github.com/dmitrijs2005/intakekeeper/internal/client/localcache"
	"github.com/dmitrijs2005/intakekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// session is the part of *draft.Session the commands use.
type session interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	State() draft.State
	Set(patch document.Document)
	Flush(ctx context.Context) error
	ResolveConflict(ctx context.Context, r draft.Resolution) error
	ConfirmDiscard() error
}

type backupStore interface {
	ListBackups(ctx context.Context, formKey string) ([]*localcache.Backup, error)
	GetBackup(ctx context.Context, id string) (*localcache.Backup, error)
}

type App struct {
	config  *config.Config
	api     client.Client
	db      *sql.DB
	session session
	backups backupStore
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer

	mu   sync.Mutex
	mode Mode

	watchMu  sync.Mutex
	watching map[string]context.CancelFunc
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	db, err := localcache.InitDatabase(ctx, c.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	cache := localcache.Open(db)
	a := &App{
		config:   c,
		db:       db,
		backups:  cache,
		logger:   logger,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		mode:     ModeOffline,
		watching: map[string]context.CancelFunc{},
	}

	if c.Encrypt {
		pw, err := GetPassword(a.out)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		err = cache.Unlock(ctx, metadata.NewSQLiteRepository(db), pw)
		clear(pw)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	api, err := client.NewIntakeClient(c.ServerEndpointAddr, c.AccessToken)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.api = api

	a.session = draft.New(api, cache, cache, logger, draft.Options{
		Key:            c.DraftKey,
		DraftID:        c.DraftID,
		Debounce:       c.Debounce,
		BackupInterval: c.BackupInterval,
		RetryDelay:     c.RetryDelay,
		Defaults:       catalog.Default().Defaults(),
		Listener:       a.onState(),
	})
	return a, nil
}

// onState prints a notice when the session enters or leaves a conflict.
func (a *App) onState() func(draft.State) {
	var mu sync.Mutex
	inConflict := false
	return func(st draft.State) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case st.IsConflict && !inConflict && st.ConflictingServerValue != nil:
			inConflict = true
			fmt.Fprintf(a.out, "\nConflict: the server has version %d. Use 'diff' and 'resolve server|mine|merge'.\n", st.ConflictingVersion)
		case !st.IsConflict && inConflict:
			inConflict = false
		}
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		fmt.Fprintf(a.out, "\nSwitched to %s mode\n", mode)
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Run opens the session and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	fmt.Fprintln(a.out, "Welcome to the intake CLI (type 'help' for commands)")

	if err := a.session.Open(ctx); err != nil {
		return fmt.Errorf("open draft: %w", err)
	}
	defer func() {
		if err := a.session.Close(context.Background()); err != nil {
			a.logger.Error(ctx, "closing session", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

func (a *App) close() {
	if a.api != nil {
		_ = a.api.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// mode accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.api.Ping(pctx)
	cancel()

	switch {
	case err == nil:
		a.setMode(ModeOnline)
	case errors.Is(err, context.Canceled):
	default:
		a.setMode(ModeOffline)
	}
}
