package store

import "time"

// Run is a single user-initiated invocation. Immutable once created.
type Run struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ArgsJSON   string    `json:"args_json"`
	ConfigHash string    `json:"config_hash"`
	GitCommit  string    `json:"git_commit,omitempty"`
}

// Step statuses form a closed set.
const (
	StepRunning = "running"
	StepSuccess = "success"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Step is a named, timed phase inside a run.
type Step struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	StatsJSON  string     `json:"stats_json"`
}

// AuditEvent is an immutable structured log row.
type AuditEvent struct {
	ID       int64     `json:"id"`
	RunID    string    `json:"run_id"`
	TS       time.Time `json:"ts"`
	Level    string    `json:"level"`
	Scope    string    `json:"scope,omitempty"`
	Event    string    `json:"event"`
	Message  string    `json:"message,omitempty"`
	DataJSON string    `json:"data_json"`
}

// GitHubQuery records a search issued during a run.
type GitHubQuery struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Pass       int       `json:"pass"`
	Query      string    `json:"query"`
	ParamsJSON string    `json:"params_json"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repo is a discovered project, keyed by canonical "owner/name".
type Repo struct {
	ID            string     `json:"id"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Topics        []string   `json:"topics"`
	Language      string     `json:"language,omitempty"`
	License       string     `json:"license,omitempty"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
	Archived      bool       `json:"archived"`
	Fork          bool       `json:"fork"`
	LastSeenRunID string     `json:"last_seen_run_id,omitempty"`
}

// Readme is the current documentation blob for a repo.
type Readme struct {
	RepoID        string    `json:"repo_id"`
	Content       []byte    `json:"-"`
	ContentSHA256 string    `json:"content_sha256"`
	FetchedAt     time.Time `json:"fetched_at"`
	ETag          string    `json:"etag,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
}

// Analysis is the validated outcome of running the LLM on a (repo, run) pair.
type Analysis struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	RepoID        string    `json:"repo_id"`
	Model         string    `json:"model"`
	PromptID      string    `json:"prompt_id"`
	PromptVersion string    `json:"prompt_version"`
	InputJSON     string    `json:"input_json"`
	OutputJSON    string    `json:"output_json"`
	LLMScoresJSON string    `json:"llm_scores_json"`
	FinalScore    float64   `json:"final_score"`
	ReasonsJSON   string    `json:"reasons_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// Keyword kinds form a closed set.
const (
	KeywordPrimary     = "primary"
	KeywordSecondary   = "secondary"
	KeywordSearchQuery = "search_query"
)

// Keyword is a per-repo term or a run-aggregate term (RepoID empty).
type Keyword struct {
	ID      string  `json:"id"`
	RunID   string  `json:"run_id"`
	RepoID  string  `json:"repo_id,omitempty"`
	Keyword string  `json:"keyword"`
	Kind    string  `json:"kind"`
	Weight  float64 `json:"weight"`
}

// Brief statuses. Only this field mutates after insert.
const (
	BriefDraft               = "draft"
	BriefShortlisted         = "shortlisted"
	BriefApproved            = "approved"
	BriefRejected            = "rejected"
	BriefRejectedByThreshold = "rejected_by_threshold"
)

// Brief is a 2-4 repo collaboration concept.
type Brief struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Score       float64   `json:"score"`
	RepoIDsJSON string    `json:"repo_ids_json"`
	ContentJSON string    `json:"content_json"`
	Markdown    string    `json:"markdown,omitempty"`
	Outreach    string    `json:"outreach,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheEntry is a cached HTTP response.
type CacheEntry struct {
	CacheKey     string     `json:"cache_key"`
	Method       string     `json:"method"`
	URL          string     `json:"url"`
	Status       int        `json:"status"`
	ETag         string     `json:"etag,omitempty"`
	LastModified string     `json:"last_modified,omitempty"`
	Body         []byte     `json:"-"`
	FetchedAt    time.Time  `json:"fetched_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// RateLimitSnapshot is a point-in-time image of upstream rate-limit state.
type RateLimitSnapshot struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	TakenAt      time.Time `json:"taken_at"`
	SnapshotJSON string    `json:"snapshot_json"`
}
