package store

import "time"

// JobType identifies what a queued job should do.
type JobType string

const (
	JobTranslatePage JobType = "translate_page"
	JobSyncStatus    JobType = "sync_status"
	JobIngestPage    JobType = "ingest_page"
)

// JobStatus tracks queue lifecycle.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobErrored JobStatus = "error"
)

// Job is one unit of queued work, scoped to a page and target language.
type Job struct {
	ID        int64
	Type      JobType
	PageTitle string
	Lang      string
	Status    JobStatus
	Priority  int
	Retries   int
	LastError *string
	RunAfter  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page is a tracked source page.
type Page struct {
	Title         string
	SourceLang    string
	LastSourceRev int64
	UpdatedAt     time.Time
}

// SegmentRow is a stored translation unit of a source page.
type SegmentRow struct {
	PageTitle   string
	SegmentKey  string
	SourceText  string
	Fingerprint string
	CreatedAt   time.Time
}

// QAStatus records the validation outcome attached to a stored translation.
type QAStatus string

const (
	QAPending QAStatus = "pending"
	QAPassed  QAStatus = "passed"
	QAFailed  QAStatus = "failed"
)

// Translation is a cached per-unit translation.
type Translation struct {
	PageTitle         string
	SegmentKey        string
	Lang              string
	TranslatedText    string
	EngineID          string
	QAStatus          QAStatus
	SourceFingerprint string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PageStateRow is the stored translation state of one page/language pair.
type PageStateRow struct {
	PageTitle string
	Lang      string
	State     string
	SourceRev int64
	UpdatedAt time.Time
}

// TermEntry is one termbase row for a language.
type TermEntry struct {
	Lang      string
	Term      string
	Preferred string
	Forbidden bool
}

// GlossaryTask is a non-blocking followup raised when a cached translation
// predates the current glossary.
type GlossaryTask struct {
	ID         int64
	PageTitle  string
	Lang       string
	SegmentKey string
	Term       string
	Detail     string
	CreatedAt  time.Time
}

// RunStatus tracks run lifecycle.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run records one orchestrator invocation.
type Run struct {
	ID          int64
	UUID        string
	Mode        string
	TargetLangs string
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// RunItem is one logged outcome inside a run.
type RunItem struct {
	ID        int64
	RunID     int64
	Kind      string
	PageTitle *string
	Lang      *string
	Status    string
	Message   *string
	CreatedAt time.Time
}

// QueueCounts summarizes jobs by status.
type QueueCounts struct {
	Queued  int
	Running int
	Done    int
	Errored int
}
