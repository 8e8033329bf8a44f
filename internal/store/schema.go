package store

const baselineSchema = `
-- Runs: one row per user-initiated invocation. Immutable after creation.
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    args_json TEXT NOT NULL DEFAULT '{}',
    config_hash TEXT NOT NULL DEFAULT '',
    git_commit TEXT NOT NULL DEFAULT ''
);

-- Steps: named phases inside a run. Inserted at start, finalized once.
CREATE TABLE IF NOT EXISTS steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    status TEXT NOT NULL DEFAULT 'running'
        CHECK(status IN ('running', 'success', 'failed', 'skipped')),
    stats_json TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);

-- Audit log: append-only structured events. Never updated or deleted
-- except by logs:prune.
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    ts DATETIME NOT NULL,
    level TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    event TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    data_json TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);

-- GitHub searches issued during a run.
CREATE TABLE IF NOT EXISTS github_queries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    pass INTEGER NOT NULL CHECK(pass IN (1, 2)),
    query TEXT NOT NULL,
    params_json TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_queries_run ON github_queries(run_id);

-- Repositories, keyed by canonical owner/name. Upserted across runs.
CREATE TABLE IF NOT EXISTS repos (
    id TEXT PRIMARY KEY,
    stars INTEGER NOT NULL DEFAULT 0,
    forks INTEGER NOT NULL DEFAULT 0,
    topics_json TEXT NOT NULL DEFAULT '[]',
    language TEXT NOT NULL DEFAULT '',
    license TEXT NOT NULL DEFAULT '',
    pushed_at DATETIME,
    archived INTEGER NOT NULL DEFAULT 0,
    fork INTEGER NOT NULL DEFAULT 0,
    last_seen_run_id TEXT,
    FOREIGN KEY (last_seen_run_id) REFERENCES runs(id)
);

-- READMEs: exactly one current row per repo (old rows deleted on upsert).
CREATE TABLE IF NOT EXISTS readmes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id TEXT NOT NULL,
    content BLOB NOT NULL,
    content_sha256 TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    etag TEXT NOT NULL DEFAULT '',
    source_url TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (repo_id) REFERENCES repos(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_readmes_repo ON readmes(repo_id);

-- Which repos each query returned, with the returned rank.
CREATE TABLE IF NOT EXISTS repo_queries (
    query_id INTEGER NOT NULL,
    repo_id TEXT NOT NULL,
    pass INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    PRIMARY KEY (query_id, repo_id),
    FOREIGN KEY (query_id) REFERENCES github_queries(id) ON DELETE CASCADE,
    FOREIGN KEY (repo_id) REFERENCES repos(id) ON DELETE CASCADE
);

-- LLM analyses: at most one per (run, repo).
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    repo_id TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_id TEXT NOT NULL,
    prompt_version TEXT NOT NULL,
    input_json TEXT NOT NULL DEFAULT '{}',
    output_json TEXT NOT NULL,
    llm_scores_json TEXT NOT NULL,
    final_score REAL NOT NULL,
    reasons_json TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    UNIQUE(run_id, repo_id),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
    FOREIGN KEY (repo_id) REFERENCES repos(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_analyses_run ON analyses(run_id);
CREATE INDEX IF NOT EXISTS idx_analyses_score ON analyses(final_score DESC);

-- Keywords: per-repo rows carry repo_id, run-aggregate rows leave it NULL.
CREATE TABLE IF NOT EXISTS keywords (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    repo_id TEXT,
    keyword TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('primary', 'secondary', 'search_query')),
    weight REAL NOT NULL DEFAULT 1.0,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
    FOREIGN KEY (repo_id) REFERENCES repos(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_keywords_run ON keywords(run_id);

-- Briefs: only status is mutable after insert.
CREATE TABLE IF NOT EXISTS briefs (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    score REAL NOT NULL,
    repo_ids_json TEXT NOT NULL,
    content_json TEXT NOT NULL,
    markdown TEXT NOT NULL DEFAULT '',
    outreach TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK(status IN ('draft', 'shortlisted', 'approved', 'rejected', 'rejected_by_threshold')),
    created_at DATETIME NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_briefs_run ON briefs(run_id);

-- Conditional-GET response cache, keyed by sha256(method, url, accept).
CREATE TABLE IF NOT EXISTS http_cache (
    cache_key TEXT PRIMARY KEY,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    status INTEGER NOT NULL,
    etag TEXT NOT NULL DEFAULT '',
    last_modified TEXT NOT NULL DEFAULT '',
    body_blob BLOB NOT NULL,
    fetched_at DATETIME NOT NULL,
    expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_http_cache_fetched ON http_cache(fetched_at);

-- Upstream rate-limit state captured at the start of a run.
CREATE TABLE IF NOT EXISTS rate_limit_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    taken_at DATETIME NOT NULL,
    snapshot_json TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
