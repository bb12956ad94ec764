package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/audit"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/notify"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/drafts"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/sections"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/statuses"
)

// --- in-memory store ---

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	drafts   map[string]*models.Draft
	records  map[string]*models.SectionRecord // section/intake
	statuses map[string]*models.SectionStatus // intake/section

	updateErr   error
	lockedReads int
}

func newMemStore() *memStore {
	return &memStore{
		drafts:   map[string]*models.Draft{},
		records:  map[string]*models.SectionRecord{},
		statuses: map[string]*models.SectionStatus{},
	}
}

func cloneDraft(d *models.Draft) *models.Draft {
	c := *d
	c.Data = d.Data.Clone()
	return &c
}

func cloneRecord(r *models.SectionRecord) *models.SectionRecord {
	c := *r
	c.Values = map[string]any(document.Document(r.Values).Clone())
	return &c
}

func (s *memStore) snapshot() (map[string]*models.Draft, map[string]*models.SectionRecord, map[string]*models.SectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := make(map[string]*models.Draft, len(s.drafts))
	for k, v := range s.drafts {
		d[k] = cloneDraft(v)
	}
	r := make(map[string]*models.SectionRecord, len(s.records))
	for k, v := range s.records {
		r[k] = cloneRecord(v)
	}
	st := make(map[string]*models.SectionStatus, len(s.statuses))
	for k, v := range s.statuses {
		c := *v
		st[k] = &c
	}
	return d, r, st
}

func (s *memStore) restore(d map[string]*models.Draft, r map[string]*models.SectionRecord, st map[string]*models.SectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts, s.records, s.statuses = d, r, st
}

func (s *memStore) put(d *models.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID] = cloneDraft(d)
}

func (s *memStore) draft(id string) *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDraft(s.drafts[id])
}

func (s *memStore) record(section, intakeID string) *models.SectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[section+"/"+intakeID]
	if !ok {
		return nil
	}
	return cloneRecord(r)
}

func (s *memStore) status(intakeID, section string) *models.SectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[intakeID+"/"+section]
	if !ok {
		return nil
	}
	c := *st
	return &c
}

// fakeTx serializes units of work and rolls the store back when fn fails.
type fakeTx struct {
	s *memStore
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	d, r, st := t.s.snapshot()
	if err := fn(ctx, nil); err != nil {
		t.s.restore(d, r, st)
		return err
	}
	return nil
}

func (t *fakeTx) Conn() dbx.DBTX { return nil }

// --- repositories ---

type memDrafts struct{ s *memStore }

func (r *memDrafts) Create(ctx context.Context, d *models.Draft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drafts[d.ID]; ok {
		return errors.New("db error: duplicate key")
	}
	r.s.drafts[d.ID] = cloneDraft(d)
	return nil
}

func (r *memDrafts) Get(ctx context.Context, id string) (*models.Draft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drafts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneDraft(d), nil
}

func (r *memDrafts) GetForUpdate(ctx context.Context, id string) (*models.Draft, error) {
	return r.Get(ctx, id)
}

func (r *memDrafts) LatestByOwner(ctx context.Context, ownerID string) (*models.Draft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.Draft
	for _, d := range r.s.drafts {
		if d.OwnerID != ownerID || d.Status != models.StatusDraft {
			continue
		}
		if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	return cloneDraft(latest), nil
}

func (r *memDrafts) Update(ctx context.Context, d *models.Draft, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	cur, ok := r.s.drafts[d.ID]
	if !ok || cur.Version != expectedVersion {
		return common.ErrVersionConflict
	}
	c := cloneDraft(d)
	c.CreatedAt, c.Status = cur.CreatedAt, cur.Status
	r.s.drafts[d.ID] = c
	return nil
}

func (r *memDrafts) SetStatus(ctx context.Context, id string, status models.Status, actorID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drafts[id]
	if !ok {
		return common.ErrorNotFound
	}
	d.Status = status
	d.UpdatedBy = actorID
	return nil
}

func (r *memDrafts) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id := range r.s.drafts {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memSections struct{ s *memStore }

func checkFields(section *catalog.Section, values map[string]any) error {
	for k := range values {
		if _, ok := section.Field(k); !ok {
			return fmt.Errorf("%w: field %q", common.ErrValidation, k)
		}
	}
	return nil
}

func (r *memSections) Get(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[section.Name+"/"+intakeID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneRecord(rec), nil
}

func (r *memSections) GetForUpdate(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error) {
	r.s.mu.Lock()
	r.s.lockedReads++
	r.s.mu.Unlock()
	return r.Get(ctx, section, intakeID)
}

func (r *memSections) Insert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error {
	if err := checkFields(section, rec.Values); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := section.Name + "/" + rec.IntakeID
	if _, ok := r.s.records[key]; ok {
		return common.ErrVersionConflict
	}
	rec.Version = 1
	r.s.records[key] = cloneRecord(rec)
	return nil
}

func (r *memSections) Update(ctx context.Context, section *catalog.Section, rec *models.SectionRecord, expectedVersion int64) error {
	if err := checkFields(section, rec.Values); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.records[section.Name+"/"+rec.IntakeID]
	if !ok || cur.Version != expectedVersion {
		return common.ErrVersionConflict
	}
	for k, v := range rec.Values {
		cur.Values[k] = document.CloneValue(v)
	}
	cur.Version++
	cur.UpdatedBy = rec.UpdatedBy
	rec.Version = cur.Version
	return nil
}

func (r *memSections) Upsert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error {
	if err := checkFields(section, rec.Values); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := section.Name + "/" + rec.IntakeID
	cur, ok := r.s.records[key]
	if !ok {
		rec.Version = 1
		r.s.records[key] = cloneRecord(rec)
		return nil
	}
	for k, v := range rec.Values {
		if cur.Values[k] == nil {
			cur.Values[k] = document.CloneValue(v)
		}
	}
	cur.Version++
	rec.Version = cur.Version
	return nil
}

type memStatuses struct{ s *memStore }

func (r *memStatuses) Get(ctx context.Context, intakeID, section string) (*models.SectionStatus, error) {
	st := r.s.status(intakeID, section)
	if st == nil {
		return nil, common.ErrorNotFound
	}
	return st, nil
}

func (r *memStatuses) List(ctx context.Context, intakeID string) ([]*models.SectionStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.SectionStatus
	for _, st := range r.s.statuses {
		if st.IntakeID == intakeID {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	return out, nil
}

func (r *memStatuses) Upsert(ctx context.Context, st *models.SectionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *st
	r.s.statuses[st.IntakeID+"/"+st.Section] = &c
	return nil
}

func (r *memStatuses) InitIfAbsent(ctx context.Context, intakeID, section string, status catalog.Status, actorID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := intakeID + "/" + section
	if _, ok := r.s.statuses[key]; ok {
		return false, nil
	}
	r.s.statuses[key] = &models.SectionStatus{IntakeID: intakeID, Section: section, Status: status, LastUpdatedBy: actorID}
	return true, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *memEvents) Append(ctx context.Context, e *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fakeRepoManager struct {
	s      *memStore
	events *memEvents
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Drafts(db dbx.DBTX) drafts.Repository        { return &memDrafts{m.s} }
func (m *fakeRepoManager) Sections(db dbx.DBTX) sections.Repository    { return &memSections{m.s} }
func (m *fakeRepoManager) Statuses(db dbx.DBTX) statuses.Repository    { return &memStatuses{m.s} }
func (m *fakeRepoManager) Events(db dbx.DBTX) events.Repository        { return m.events }

// --- side effects ---

type recordingSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recordingSink) Emit(ctx context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingSink) all() []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Record(nil), r.records...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev notify.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) all() []notify.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.ChangeEvent(nil), p.events...)
}

type chanSubscriber struct {
	ch  chan notify.ChangeEvent
	err error
}

func (c *chanSubscriber) Subscribe(ctx context.Context, intakeID string) (<-chan notify.ChangeEvent, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(chan notify.ChangeEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type fakeExporter struct {
	key     string
	err     error
	gotID   string
	gotDoc  document.Document
	gotVers int64
}

func (e *fakeExporter) Export(ctx context.Context, intakeID string, version int64, doc document.Document) (string, error) {
	e.gotID, e.gotVers, e.gotDoc = intakeID, version, doc
	return e.key, e.err
}

// --- fixture ---

type fixture struct {
	store     *memStore
	audit     *recordingSink
	publisher *recordingPublisher
	sub       *chanSubscriber
	exporter  *fakeExporter
	deps      Deps
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		audit:     &recordingSink{},
		publisher: &recordingPublisher{},
		sub:       &chanSubscriber{ch: make(chan notify.ChangeEvent)},
		exporter:  &fakeExporter{key: "archive/2026/01/x.json"},
	}
	f.deps = Deps{
		Tx:          &fakeTx{s: f.store},
		RepoManager: &fakeRepoManager{s: f.store, events: &memEvents{}},
		Audit:       f.audit,
		Notifier:    f.publisher,
		Subscriber:  f.sub,
		Exporter:    f.exporter,
	}
	return f
}

func ptr(v int64) *int64 { return &v }
