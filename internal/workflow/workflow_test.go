package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"wikiloom/internal/cache"
	"wikiloom/internal/config"
	"wikiloom/internal/engine"
	"wikiloom/internal/pagestate"
	"wikiloom/internal/segment"
	"wikiloom/internal/store"
	"wikiloom/internal/testsupport"
)

type fixture struct {
	manager *Manager
	store   *store.Store
	wiki    *testsupport.FakeWiki
	cfg     *config.Config
}

func newFixture(t *testing.T, provider engine.Provider) *fixture {
	t.Helper()
	s := testsupport.NewStore(t)
	cfg := testsupport.NewConfig(t)
	wiki := testsupport.NewFakeWiki()

	if provider == nil {
		provider = engine.NewMockProvider(nil)
	}
	gateway := engine.NewGatewayWithProviders(nil,
		engine.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond}, provider)
	c := cache.New(s, nil, time.Hour)

	return &fixture{
		manager: NewManager(s, c, gateway, wiki, cfg, nil),
		store:   s,
		wiki:    wiki,
		cfg:     cfg,
	}
}

func seedPage(t *testing.T, s *store.Store, title string, units []segment.Segment) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertPage(ctx, store.Page{Title: title, SourceLang: "en", LastSourceRev: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RefreshSegments(ctx, title, units); err != nil {
		t.Fatal(err)
	}
}

var sampleUnits = []segment.Segment{
	{Key: "1", Text: "== Welcome =="},
	{Key: "2", Text: "This wiki documents the project."},
}

func TestTranslateJobPublishesAllUnits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)

	if _, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	edits := f.wiki.UnitEdits("Main Page", "de")
	if len(edits) != 2 {
		t.Fatalf("unit edits: %+v", f.wiki.Edits)
	}
	if edits[0].Title != "Translations:Main Page/1/de" {
		t.Fatalf("first unit title: %s", edits[0].Title)
	}
	// First unit carries the disclaimer and translated display title.
	if !strings.Contains(edits[0].Text, "{{MachineTranslation|de}}") {
		t.Fatalf("disclaimer missing: %q", edits[0].Text)
	}
	if !strings.Contains(edits[0].Text, "{{DISPLAYTITLE:") {
		t.Fatalf("display title missing: %q", edits[0].Text)
	}
	if !strings.Contains(edits[1].Text, "[de] This wiki documents the project.") {
		t.Fatalf("unit 2 text: %q", edits[1].Text)
	}

	counts, err := f.store.Counts(ctx)
	if err != nil || counts.Done != 1 {
		t.Fatalf("counts: %+v %v", counts, err)
	}

	state, err := f.store.GetState(ctx, "Main Page", "de")
	if err != nil || state.State != string(pagestate.StateMachine) {
		t.Fatalf("state: %+v %v", state, err)
	}

	// Both units are now cached as passed.
	tr, err := f.store.GetTranslation(ctx, "Main Page", "2", "de")
	if err != nil || tr.QAStatus != store.QAPassed {
		t.Fatalf("cached translation: %+v %v", tr, err)
	}
}

func TestTranslateJobStateLockAborts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)

	if _, err := f.store.ApplyStateEvent(ctx, "Main Page", "de", pagestate.EventHumanReviewed, pagestate.ActorHuman, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(f.wiki.Edits) != 0 {
		t.Fatalf("locked page was written: %+v", f.wiki.Edits)
	}
	// The lock is not an error and not retried: the job completes.
	counts, err := f.store.Counts(ctx)
	if err != nil || counts.Done != 1 || counts.Errored != 0 || counts.Queued != 0 {
		t.Fatalf("counts: %+v %v", counts, err)
	}
}

func TestTranslateJobEngineOutageRequeuesWithBackoff(t *testing.T) {
	failing := engine.NewMockProvider(func(context.Context, engine.Request) (string, error) {
		return "", &engine.ProviderError{Provider: "mock", Message: "down", Retryable: true}
	})
	f := newFixture(t, failing)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)

	if _, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	jobs, err := f.store.ListJobs(ctx, store.JobQueued, 0)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("queued jobs: %v %v", jobs, err)
	}
	job := jobs[0]
	if job.Retries != 1 {
		t.Fatalf("retries: %d", job.Retries)
	}
	if job.RunAfter == nil || !job.RunAfter.After(time.Now().Add(500*time.Millisecond)) {
		t.Fatalf("backoff deadline: %v", job.RunAfter)
	}
	if job.LastError == nil || !strings.Contains(*job.LastError, "unavailable") {
		t.Fatalf("last error: %v", job.LastError)
	}
}

func TestTranslateJobExhaustedRetriesFail(t *testing.T) {
	failing := engine.NewMockProvider(func(context.Context, engine.Request) (string, error) {
		return "", &engine.ProviderError{Provider: "mock", Message: "down", Retryable: true}
	})
	f := newFixture(t, failing)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)

	id, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0)
	if err != nil {
		t.Fatal(err)
	}
	job, err := f.store.Claim(ctx, time.Now())
	if err != nil || job == nil {
		t.Fatalf("claim: %+v %v", job, err)
	}
	job.Retries = f.cfg.Workflow.RetryCap

	f.manager.handleJob(ctx, RunContext{Mode: cache.ModeNormal}, job)

	got, err := f.store.GetJob(ctx, id)
	if err != nil || got.Status != store.JobErrored {
		t.Fatalf("job: %+v %v", got, err)
	}
}

func TestTranslateJobPartialPublicationOnQAFailure(t *testing.T) {
	// The engine drops protected tokens on any unit containing a template.
	dropping := engine.NewMockProvider(func(_ context.Context, req engine.Request) (string, error) {
		if strings.Contains(req.Text, "__PH") {
			return "Kaputte Ausgabe ohne Token.", nil
		}
		return "[de] " + req.Text, nil
	})
	f := newFixture(t, dropping)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", []segment.Segment{
		{Key: "1", Text: "Plain prose unit."},
		{Key: "2", Text: "Unit with {{Infobox}} template."},
	})

	id, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Unit 1 published, unit 2 withheld.
	edits := f.wiki.UnitEdits("Main Page", "de")
	if len(edits) != 1 || edits[0].Title != "Translations:Main Page/1/de" {
		t.Fatalf("edits: %+v", edits)
	}

	got, err := f.store.GetJob(ctx, id)
	if err != nil || got.Status != store.JobErrored {
		t.Fatalf("job: %+v %v", got, err)
	}
	if got.LastError == nil || !strings.Contains(*got.LastError, "failed validation") {
		t.Fatalf("last error: %v", got.LastError)
	}

	// The failed unit is cached as failed so it is never reused.
	tr, err := f.store.GetTranslation(ctx, "Main Page", "2", "de")
	if err != nil || tr.QAStatus != store.QAFailed {
		t.Fatalf("failed unit cache: %+v %v", tr, err)
	}
}

func TestTranslateJobServesFromCache(t *testing.T) {
	exploding := engine.NewMockProvider(func(context.Context, engine.Request) (string, error) {
		return "", &engine.ProviderError{Provider: "mock", Message: "engine must not be called"}
	})
	f := newFixture(t, exploding)
	ctx := context.Background()

	units := []segment.Segment{{Key: "1", Text: "Cached sentence."}}
	seedPage(t, f.store, "Main Page", units)
	err := f.store.UpsertTranslation(ctx, store.Translation{
		PageTitle:         "Main Page",
		SegmentKey:        "1",
		Lang:              "de",
		TranslatedText:    "Gecachter Satz.",
		EngineID:          "openai",
		QAStatus:          store.QAPassed,
		SourceFingerprint: segment.Fingerprint("Cached sentence."),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	edits := f.wiki.UnitEdits("Main Page", "de")
	if len(edits) != 1 || !strings.Contains(edits[0].Text, "Gecachter Satz.") {
		t.Fatalf("edits: %+v", edits)
	}
	counts, err := f.store.Counts(ctx)
	if err != nil || counts.Done != 1 {
		t.Fatalf("counts: %+v %v", counts, err)
	}
}

func TestTranslateJobCacheOnlyMissBecomesFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", []segment.Segment{{Key: "1", Text: "Uncached sentence."}})

	id, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeCacheOnly}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(f.wiki.Edits) != 0 {
		t.Fatalf("cache-only miss published: %+v", f.wiki.Edits)
	}
	got, err := f.store.GetJob(ctx, id)
	if err != nil || got.Status != store.JobErrored {
		t.Fatalf("job: %+v %v", got, err)
	}
}

func TestTranslateJobCacheOnlyFullyCachedSkipsEngine(t *testing.T) {
	calls := 0
	counting := engine.NewMockProvider(func(_ context.Context, req engine.Request) (string, error) {
		calls++
		return "[de] " + req.Text, nil
	})
	f := newFixture(t, counting)
	ctx := context.Background()

	units := []segment.Segment{{Key: "1", Text: "Cached sentence."}}
	seedPage(t, f.store, "Main Page", units)
	err := f.store.UpsertTranslation(ctx, store.Translation{
		PageTitle:         "Main Page",
		SegmentKey:        "1",
		Lang:              "de",
		TranslatedText:    "Gecachter Satz.",
		EngineID:          "openai",
		QAStatus:          store.QAPassed,
		SourceFingerprint: segment.Fingerprint("Cached sentence."),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeCacheOnly}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if calls != 0 {
		t.Fatalf("engine called %d times in cache-only mode", calls)
	}
	edits := f.wiki.UnitEdits("Main Page", "de")
	if len(edits) != 1 || !strings.Contains(edits[0].Text, "Gecachter Satz.") {
		t.Fatalf("edits: %+v", edits)
	}
	// The translated display title needs an engine, so cache-only leaves
	// it out.
	if strings.Contains(edits[0].Text, "{{DISPLAYTITLE:") {
		t.Fatalf("display title in cache-only run: %q", edits[0].Text)
	}
	counts, err := f.store.Counts(ctx)
	if err != nil || counts.Done != 1 {
		t.Fatalf("counts: %+v %v", counts, err)
	}
}

func TestTranslateJobEchoedSourceFailsValidation(t *testing.T) {
	// An engine returning its input unchanged must not publish, even when
	// the unit carries links the pipeline would rewrite afterwards.
	echoing := engine.NewMockProvider(func(_ context.Context, req engine.Request) (string, error) {
		return req.Text, nil
	})
	f := newFixture(t, echoing)
	ctx := context.Background()
	source := "Visit the [[World]] page today."
	seedPage(t, f.store, "Main Page", []segment.Segment{{Key: "1", Text: source}})

	id, err := f.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if edits := f.wiki.UnitEdits("Main Page", "de"); len(edits) != 0 {
		t.Fatalf("echoed unit published: %+v", edits)
	}
	got, err := f.store.GetJob(ctx, id)
	if err != nil || got.Status != store.JobErrored {
		t.Fatalf("job: %+v %v", got, err)
	}
	if got.LastError == nil || !strings.Contains(*got.LastError, "failed validation") {
		t.Fatalf("last error: %v", got.LastError)
	}
	// Cached as failed with the unrewritten text.
	tr, err := f.store.GetTranslation(ctx, "Main Page", "1", "de")
	if err != nil || tr.QAStatus != store.QAFailed {
		t.Fatalf("failed unit cache: %+v %v", tr, err)
	}
	if tr.TranslatedText != source {
		t.Fatalf("cached text was rewritten: %q", tr.TranslatedText)
	}
}

func TestSyncStatusAdoptsPlatformReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)
	f.wiki.Meta["Main Page"] = map[string]string{"de": "reviewed"}

	if _, err := f.store.Enqueue(ctx, store.JobSyncStatus, "Main Page", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	state, err := f.store.GetState(ctx, "Main Page", "de")
	if err != nil || state.State != string(pagestate.StateReviewed) {
		t.Fatalf("state: %+v %v", state, err)
	}
	// The state map is written back to the platform.
	if f.wiki.Meta["Main Page"]["de"] != "reviewed" {
		t.Fatalf("metadata: %v", f.wiki.Meta["Main Page"])
	}
}

func TestSyncStatusKeepsOutdatedOverStaleReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedPage(t, f.store, "Main Page", sampleUnits)

	// Reviewed, then the source advanced and outdated the pair.
	if _, err := f.store.ApplyStateEvent(ctx, "Main Page", "de", pagestate.EventHumanReviewed, pagestate.ActorHuman, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.ApplyStateEvent(ctx, "Main Page", "de", pagestate.EventSourceAdvanced, pagestate.ActorBot, 11); err != nil {
		t.Fatal(err)
	}
	// The platform note still carries the pre-advance review.
	f.wiki.Meta["Main Page"] = map[string]string{"de": "reviewed"}

	if _, err := f.store.Enqueue(ctx, store.JobSyncStatus, "Main Page", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ProcessQueue(ctx, RunContext{Mode: cache.ModeNormal}); err != nil {
		t.Fatalf("process: %v", err)
	}

	// The stale note does not resurrect reviewed; the write-back replaces it.
	state, err := f.store.GetState(ctx, "Main Page", "de")
	if err != nil || state.State != string(pagestate.StateOutdated) {
		t.Fatalf("state: %+v %v", state, err)
	}
	if f.wiki.Meta["Main Page"]["de"] != "outdated" {
		t.Fatalf("metadata: %v", f.wiki.Meta["Main Page"])
	}
}

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for retries, expected := range want {
		if got := backoffDelay(retries); got != expected {
			t.Fatalf("backoff(%d) = %v, want %v", retries, got, expected)
		}
	}
}

func TestRewriteLinks(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"See [[Main Page]] here.", "See [[Main Page/de|Main Page]] here."},
		{"See [[Main Page|the main page]].", "See [[Main Page/de|the main page]]."},
		{"[[File:Logo.png|thumb]]", "[[File:Logo.png|thumb]]"},
		{"[[Category:Docs]]", "[[Category:Docs]]"},
		{"[[Main Page#Section]]", "[[Main Page#Section]]"},
		{"[[Main Page/de|schon da]]", "[[Main Page/de|schon da]]"},
		{"no links at all", "no links at all"},
	}
	for _, tc := range cases {
		if got := rewriteLinks(tc.in, "de"); got != tc.want {
			t.Fatalf("rewriteLinks(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
