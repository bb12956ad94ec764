package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/intakekeeper/internal/client/draft"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
)

var errNotSaved = errors.New("draft has not been saved to the server yet")

func (a *App) getStatus() string {
	st := a.session.State()
	s := string(a.Mode())
	switch {
	case st.IsConflict:
		s += " conflict"
	case st.HasUnsavedChanges:
		s += " unsaved"
	}
	return fmt.Sprintf("(%s)", s)
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func (a *App) printDocument(d document.Document, keys []string) {
	if len(keys) == 0 {
		keys = d.Keys()
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, formatValue(d[k]))
	}
	_ = w.Flush()
}

func (a *App) Show(ctx context.Context, args []string) error {
	a.printDocument(a.session.State().Value, args)
	return nil
}

func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: set name=value ...")
	}
	patch, err := ParsePairs(args)
	if err != nil {
		return err
	}
	a.session.Set(patch)
	return nil
}

func (a *App) Text(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: text <field>")
	}
	text, err := GetMultiline(a.reader, "Enter "+args[0]+":", a.out)
	if err != nil {
		return err
	}
	a.session.Set(document.Document{args[0]: text})
	return nil
}

func (a *App) Save(ctx context.Context) error {
	if err := a.session.Flush(ctx); err != nil {
		return err
	}
	st := a.session.State()
	fmt.Fprintf(a.out, "Saved %s at version %d\n", st.DraftID, st.Version)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st := a.session.State()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "mode\t%s\n", a.Mode())
	id := st.DraftID
	if id == "" {
		id = "(not created)"
	}
	fmt.Fprintf(w, "draft\t%s\n", id)
	fmt.Fprintf(w, "version\t%d\n", st.Version)
	fmt.Fprintf(w, "unsaved\t%t\n", st.HasUnsavedChanges)
	if !st.LastSaved.IsZero() {
		fmt.Fprintf(w, "last saved\t%s\n", st.LastSaved.Local().Format("15:04:05"))
	}
	fmt.Fprintf(w, "conflict\t%t\n", st.IsConflict)
	if st.LastError != nil {
		fmt.Fprintf(w, "last error\t%s (%s)\n", st.LastError, common.Classify(st.LastError))
	}
	return w.Flush()
}

// Diff prints the fields where the local value and the server copy differ.
func (a *App) Diff(ctx context.Context) error {
	st := a.session.State()
	if !st.IsConflict {
		return draft.ErrNoConflict
	}
	if st.ConflictingServerValue == nil {
		return errors.New("server copy not fetched yet")
	}
	changes := document.Diff(st.ConflictingServerValue, st.Value)
	if len(changes) == 0 {
		fmt.Fprintln(a.out, "No differences")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "field\tserver (v%d)\tlocal\n", st.ConflictingVersion)
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Field, formatValue(c.Old), formatValue(c.New))
	}
	return w.Flush()
}

func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: resolve server|mine|merge")
	}
	st := a.session.State()

	var r draft.Resolution
	switch args[0] {
	case "server":
		r = draft.Resolution{Choice: draft.DiscardLocal}
	case "mine":
		r = draft.Resolution{Choice: draft.ManualMerge, Merged: st.Value}
	case "merge":
		if err := a.Diff(ctx); err != nil {
			return err
		}
		patch, err := GetPairs(a.reader, "Values to keep on top of the server copy", a.out)
		if err != nil {
			return err
		}
		r = draft.Resolution{Choice: draft.ManualMerge, Merged: document.Merge(st.ConflictingServerValue, patch)}
	default:
		return fmt.Errorf("unknown choice %q", args[0])
	}

	if err := a.session.ResolveConflict(ctx, r); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Conflict resolved, version %d\n", a.session.State().Version)
	return nil
}

func (a *App) draftID() (string, error) {
	id := a.session.State().DraftID
	if id == "" {
		return "", errNotSaved
	}
	return id, nil
}

func (a *App) printSection(v *intakerpc.SectionView) {
	fmt.Fprintf(a.out, "[%s] status=%s version=%d\n", v.Section, v.Status, v.Version)
	keys := v.Fields.Keys()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%s\t(%s)\n", k, formatValue(v.Fields[k]), v.Sources[k])
	}
	_ = w.Flush()
}

func (a *App) Section(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: section <name>")
	}
	id, err := a.draftID()
	if err != nil {
		return err
	}
	v, err := a.api.ReadSection(ctx, id, args[0])
	if err != nil {
		return err
	}
	a.printSection(v)
	return nil
}

func (a *App) Intake(ctx context.Context) error {
	id, err := a.draftID()
	if err != nil {
		return err
	}
	v, err := a.api.ReadIntake(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "intake %s status=%s version=%d\n", v.IntakeID, v.Status, v.Version)
	sections := make([]string, 0, len(v.SectionStatus))
	for s := range v.SectionStatus {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	for _, s := range sections {
		fmt.Fprintf(a.out, "  %s: %s\n", s, v.SectionStatus[s])
	}
	a.printDocument(v.Fields, nil)
	return nil
}

func (a *App) Mark(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: mark <section> <status>")
	}
	id, err := a.draftID()
	if err != nil {
		return err
	}
	if err := a.api.SetSectionStatus(ctx, id, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is now %s\n", args[0], args[1])
	return nil
}

// Transition saves pending edits first so the lifecycle change applies to
// what the user sees.
func (a *App) Transition(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: transition <status>")
	}
	if err := a.session.Flush(ctx); err != nil {
		return err
	}
	id, err := a.draftID()
	if err != nil {
		return err
	}
	resp, err := a.api.Transition(ctx, id, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Intake is now %s\n", resp.Status)
	if resp.ArchiveKey != "" {
		fmt.Fprintf(a.out, "Archived to %s\n", resp.ArchiveKey)
	}
	return nil
}

// Watch prints section changes in the background until the app exits.
func (a *App) Watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: watch <section>")
	}
	id, err := a.draftID()
	if err != nil {
		return err
	}
	section := args[0]

	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watching == nil {
		a.watching = map[string]context.CancelFunc{}
	}
	if _, ok := a.watching[section]; ok {
		return fmt.Errorf("already watching %s", section)
	}
	wctx, cancel := context.WithCancel(ctx)
	a.watching[section] = cancel

	go func() {
		err := a.api.WatchSection(wctx, id, section, func(v *intakerpc.SectionView) {
			fmt.Fprintln(a.out)
			a.printSection(v)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(a.out, "\nwatch %s stopped: %v\n", section, err)
		}
		a.watchMu.Lock()
		delete(a.watching, section)
		a.watchMu.Unlock()
		cancel()
	}()
	fmt.Fprintf(a.out, "Watching %s\n", section)
	return nil
}

func (a *App) Backups(ctx context.Context) error {
	list, err := a.backups.ListBackups(ctx, a.config.DraftKey)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No backups")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Value.String("clientName"))
	}
	return w.Flush()
}

// Restore merges a backup into the draft as a regular edit.
func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: restore <id>")
	}
	b, err := a.backups.GetBackup(ctx, args[0])
	if err != nil {
		return err
	}
	if b.FormKey != a.config.DraftKey {
		return fmt.Errorf("backup %s belongs to form %s", b.ID, b.FormKey)
	}
	a.session.Set(b.Value)
	fmt.Fprintf(a.out, "Restored backup from %s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// ConfirmExit is the exit guard. With unsaved edits it tries one save and
// then asks before leaving; the local snapshot keeps the edits either way.
func (a *App) ConfirmExit(ctx context.Context) bool {
	if a.session.ConfirmDiscard() == nil {
		return true
	}
	err := a.session.Flush(ctx)
	if err == nil {
		return true
	}
	fmt.Fprintf(a.out, "Could not save: %v\n", err)
	answer, err := GetSimpleText(a.reader, "Unsaved changes stay in the local cache only. Leave anyway? (y/N)", a.out)
	if err != nil {
		return true
	}
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}
