package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/client"
	"github.com/dmitrijs2005/intakekeeper/internal/client/localcache"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
)

// fakeRemote is an in-memory server with compare-and-increment saves and
// save id replay.
type fakeRemote struct {
	mu      sync.Mutex
	drafts  map[string]*client.Draft
	applied map[string]client.SaveResult
	latest  string
	nextID  int

	saves      []client.SaveRequest
	fetches    int
	failNext   []error
	applyFirst bool
	fetchErr   error
	fetchNil   bool

	// block, when set, holds Save until released.
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{drafts: map[string]*client.Draft{}, applied: map[string]client.SaveResult{}}
}

func (f *fakeRemote) seed(id string, version int64, data document.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[id] = &client.Draft{ID: id, Data: data.Clone(), Version: version, Status: "draft"}
	f.latest = id
}

func (f *fakeRemote) draft(id string) client.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := *f.drafts[id]
	d.Data = d.Data.Clone()
	return d
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeRemote) Save(ctx context.Context, req client.SaveRequest) (*client.SaveResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)

	var injected error
	if len(f.failNext) > 0 {
		injected, f.failNext = f.failNext[0], f.failNext[1:]
		if injected != nil && !f.applyFirst {
			return nil, injected
		}
	}

	res, err := f.apply(req)
	if injected != nil {
		return nil, injected
	}
	return res, err
}

func (f *fakeRemote) apply(req client.SaveRequest) (*client.SaveResult, error) {
	if r, ok := f.applied[req.SaveID]; ok && req.SaveID != "" {
		r.Replayed = true
		return &r, nil
	}
	if req.DraftID == "" {
		f.nextID++
		id := fmt.Sprintf("created-%d", f.nextID)
		f.drafts[id] = &client.Draft{ID: id, Data: req.Value.Clone(), Version: 1, Status: "draft"}
		f.latest = id
		r := client.SaveResult{DraftID: id, Version: 1}
		f.applied[req.SaveID] = r
		return &r, nil
	}
	d, ok := f.drafts[req.DraftID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != d.Version {
		return nil, &common.ConflictError{Entity: "draft", Expected: *req.ExpectedVersion, Current: d.Version}
	}
	d.Data = document.Merge(d.Data, req.Value)
	d.Version++
	r := client.SaveResult{DraftID: d.ID, Version: d.Version}
	f.applied[req.SaveID] = r
	return &r, nil
}

func (f *fakeRemote) Fetch(ctx context.Context, id string) (*client.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchNil {
		return nil, nil
	}
	d, ok := f.drafts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *d
	out.Data = d.Data.Clone()
	return &out, nil
}

func (f *fakeRemote) FetchLatest(ctx context.Context) (*client.Draft, error) {
	f.mu.Lock()
	latest := f.latest
	f.mu.Unlock()
	if latest == "" {
		f.mu.Lock()
		f.fetches++
		err := f.fetchErr
		f.mu.Unlock()
		return nil, err
	}
	return f.Fetch(ctx, latest)
}

type fakeCache struct {
	mu      sync.Mutex
	snaps   map[string]*localcache.Snapshot
	writes  int
	readErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: map[string]*localcache.Snapshot{}}
}

func (c *fakeCache) Read(ctx context.Context, key string) (*localcache.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	s, ok := c.snaps[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Value = s.Value.Clone()
	return &cp, nil
}

func (c *fakeCache) Write(ctx context.Context, s *localcache.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	cp.Value = s.Value.Clone()
	c.snaps[s.Key] = &cp
	c.writes++
	return nil
}

func (c *fakeCache) get(key string) *localcache.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[key]
}

type fakeBackups struct {
	mu   sync.Mutex
	list []*localcache.Backup
}

func (b *fakeBackups) AppendBackup(ctx context.Context, formKey string, v document.Document) (*localcache.Backup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk := &localcache.Backup{ID: fmt.Sprintf("%s-%d", formKey, len(b.list)), FormKey: formKey, Value: v.Clone(), CreatedAt: time.Now()}
	b.list = append(b.list, bk)
	return bk, nil
}

// fakeTimers records armed timers; tests fire them by hand.
type fakeTimers struct {
	mu     sync.Mutex
	active *fakeTimer
	armed  []time.Duration
}

type fakeTimer struct {
	owner   *fakeTimers
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{owner: ft, f: f}
	ft.active = t
	ft.armed = append(ft.armed, d)
	return t
}

// fire runs the pending timer synchronously. It reports false when none is
// armed.
func (ft *fakeTimers) fire() bool {
	ft.mu.Lock()
	t := ft.active
	if t == nil || t.stopped {
		ft.mu.Unlock()
		return false
	}
	t.stopped = true
	ft.mu.Unlock()
	t.f()
	return true
}

func (ft *fakeTimers) pending() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.active != nil && !ft.active.stopped
}

func (ft *fakeTimers) last() time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.armed) == 0 {
		return 0
	}
	return ft.armed[len(ft.armed)-1]
}

type fixture struct {
	remote  *fakeRemote
	cache   *fakeCache
	backups *fakeBackups
	timers  *fakeTimers
	states  []State
	mu      sync.Mutex
}

func newFixture() *fixture {
	return &fixture{remote: newFakeRemote(), cache: newFakeCache(), backups: &fakeBackups{}, timers: &fakeTimers{}}
}

func (fx *fixture) session(opts Options) *Session {
	if opts.Key == "" {
		opts.Key = "form"
	}
	opts.Listener = func(st State) {
		fx.mu.Lock()
		fx.states = append(fx.states, st)
		fx.mu.Unlock()
	}
	s := New(fx.remote, fx.cache, fx.backups, nil, opts)
	s.afterFunc = fx.timers.afterFunc
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("save-%d", n)
	}
	return s
}
