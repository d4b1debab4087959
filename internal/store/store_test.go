package store_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"recut/internal/matching"
	"recut/internal/project"
	"recut/internal/reconcile"
	"recut/internal/services"
	"recut/internal/store"
	"recut/internal/testsupport"
	"recut/internal/timeline"
)

func matchedProject(t *testing.T, id string) *project.Project {
	t.Helper()
	est, err := reconcile.NewEstimator(reconcile.DefaultRates())
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	p, err := project.New(id, "Demo", "https://example.com/"+id+".mp4", "en", []project.PublishTarget{
		{Platform: "youtube", ScheduledAt: time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC), Caption: "part one"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	steps := []func() error{
		func() error { return p.CompleteDownload("/work/" + id + "/source.mp4") },
		func() error {
			return p.CompleteDetect([]timeline.Scene{{Index: 0, Start: 0, End: 4}, {Index: 1, Start: 4, End: 9.5}}, 9.5)
		},
		p.CompleteSceneValidation,
		func() error {
			return p.CompleteTranscribe([]project.TranscriptSegment{
				{SceneIndex: 0, Text: "hola amigos", Language: "es"},
				{SceneIndex: 1, Text: "adios", Language: "es"},
			})
		},
		func() error {
			return p.CompleteRestructure([]project.RestructuredText{
				{SceneIndex: 0, Text: "hello friends and welcome back"},
				{SceneIndex: 1, Text: "goodbye"},
			}, est)
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	_, err = p.CompleteMatch([]matching.Result{
		{
			SceneIndex: 0,
			State:      matching.Resolved,
			Candidates: []matching.Candidate{{EpisodeID: "s01e01", SourceStart: 12, SourceEnd: 16, Confidence: 0.97, Rank: 1}},
			BestScore:  0.97,
		},
		{
			SceneIndex: 1,
			State:      matching.Ambiguous,
			Candidates: []matching.Candidate{
				{EpisodeID: "s01e02", SourceStart: 30, SourceEnd: 35.5, Confidence: 0.88, Rank: 1},
				{EpisodeID: "s01e03", SourceStart: 2, SourceEnd: 7.5, Confidence: 0.87, Rank: 2},
			},
			BestScore: 0.88,
		},
	})
	if err != nil {
		t.Fatalf("CompleteMatch: %v", err)
	}
	return p
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := matchedProject(t, "rt")
	if err := st.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Revision != 1 {
		t.Fatalf("revision = %d, want 1", p.Revision)
	}

	got, err := st.Get(ctx, "rt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != project.StageGapsPending {
		t.Fatalf("stage = %s, want gaps_pending", got.Stage)
	}
	if !reflect.DeepEqual(got.Timeline.Scenes(), p.Timeline.Scenes()) {
		t.Fatalf("scenes = %v, want %v", got.Timeline.Scenes(), p.Timeline.Scenes())
	}
	if got.Timeline.Duration() != 9.5 {
		t.Fatalf("duration = %v", got.Timeline.Duration())
	}
	if !reflect.DeepEqual(got.Matches, p.Matches) {
		t.Fatalf("matches differ:\n got %+v\nwant %+v", got.Matches, p.Matches)
	}
	if !reflect.DeepEqual(got.Transcript, p.Transcript) {
		t.Fatalf("transcript differs")
	}
	if !reflect.DeepEqual(got.Script, p.Script) {
		t.Fatalf("script differs:\n got %+v\nwant %+v", got.Script, p.Script)
	}
	if !reflect.DeepEqual(got.Targets, p.Targets) {
		t.Fatalf("targets = %+v, want %+v", got.Targets, p.Targets)
	}
	if gaps := got.Gaps(); !reflect.DeepEqual(gaps, []int{1}) {
		t.Fatalf("gaps = %v", gaps)
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	first, _ := project.New("dup", "", "ref", "", nil)
	if err := st.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, _ := project.New("dup", "", "ref", "", nil)
	if err := st.Create(ctx, second); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate create err = %v, want conflict", err)
	}
}

func TestSaveDetectsStaleRevision(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	p, _ := project.New("cas", "", "ref", "", nil)
	if err := st.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, err := st.Get(ctx, "cas")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := st.Get(ctx, "cas")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := a.CompleteDownload("/tmp/a.mp4"); err != nil {
		t.Fatalf("CompleteDownload: %v", err)
	}
	if err := st.Save(ctx, a); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if a.Revision != 2 {
		t.Fatalf("revision = %d, want 2", a.Revision)
	}
	b.Name = "renamed"
	if err := st.Save(ctx, b); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("stale save err = %v, want conflict", err)
	}

	got, _ := st.Get(ctx, "cas")
	if got.Stage != project.StageDownloading || got.VideoPath != "/tmp/a.mp4" || got.Name != "cas" {
		t.Fatalf("stored project = %+v", got)
	}
}

func TestSaveRewritesChildren(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	p := matchedProject(t, "edit")
	if err := st.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := p.ApplyEdit(project.Edit{Kind: project.EditMerge, Index: 0, Direction: timeline.Next}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := p.Fail(project.StepMatch, "fingerprinter crashed", time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := st.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Get(ctx, "edit")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SceneCount() != 1 {
		t.Fatalf("scene count = %d, want 1", got.SceneCount())
	}
	if !reflect.DeepEqual(got.Matches, p.Matches) || !reflect.DeepEqual(got.Script, p.Script) {
		t.Fatalf("children not rewritten: %+v", got.Matches)
	}
	if got.Stage != project.StageFailed || got.Failure == nil {
		t.Fatalf("failure not stored: %+v", got.Failure)
	}
	if !reflect.DeepEqual(*got.Failure, *p.Failure) {
		t.Fatalf("failure = %+v, want %+v", *got.Failure, *p.Failure)
	}
	if got.Effective() != p.Effective() {
		t.Fatalf("effective = %s, want %s", got.Effective(), p.Effective())
	}
}

func TestGetListDelete(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get missing err = %v", err)
	}
	for _, id := range []string{"a", "b"} {
		p, _ := project.New(id, "", "ref", "", nil)
		if err := st.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list len = %d", len(list))
	}
	counts, err := st.StageCounts(ctx)
	if err != nil {
		t.Fatalf("StageCounts: %v", err)
	}
	if counts[project.StageCreated] != 2 {
		t.Fatalf("counts = %v", counts)
	}
	if err := st.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "a"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	missing, _ := project.New("ghost", "", "ref", "", nil)
	missing.Revision = 1
	if err := st.Save(ctx, missing); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("save missing err = %v", err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, _ := project.New("keep", "", "ref", "", nil)
	if err := st.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Get(context.Background(), "keep"); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	_ = db.Close()

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
