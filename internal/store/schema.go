package store

// schemaStatements holds the idempotent schema. The partial unique index on
// jobs is the dedup guarantee: at most one queued job per (type, page, lang)
// regardless of how many producers race the insert.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pages (
        title TEXT PRIMARY KEY,
        source_lang TEXT NOT NULL,
        last_source_rev INTEGER NOT NULL DEFAULT 0,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS segments (
        page_title TEXT NOT NULL,
        segment_key TEXT NOT NULL,
        source_text TEXT NOT NULL,
        fingerprint TEXT NOT NULL,
        created_at TEXT NOT NULL,
        PRIMARY KEY (page_title, segment_key)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_segments_fingerprint ON segments(fingerprint)`,
	`CREATE TABLE IF NOT EXISTS translations (
        page_title TEXT NOT NULL,
        segment_key TEXT NOT NULL,
        lang TEXT NOT NULL,
        translated_text TEXT NOT NULL,
        engine_id TEXT NOT NULL DEFAULT '',
        qa_status TEXT NOT NULL DEFAULT 'pending',
        source_fingerprint TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        PRIMARY KEY (page_title, segment_key, lang)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_translations_content ON translations(lang, source_fingerprint)`,
	`CREATE TABLE IF NOT EXISTS jobs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        type TEXT NOT NULL,
        page_title TEXT NOT NULL,
        lang TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'queued',
        priority INTEGER NOT NULL DEFAULT 0,
        retries INTEGER NOT NULL DEFAULT 0,
        last_error TEXT,
        run_after TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_queued_dedup
        ON jobs(type, page_title, lang) WHERE status = 'queued'`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, priority, id)`,
	`CREATE TABLE IF NOT EXISTS page_state (
        page_title TEXT NOT NULL,
        lang TEXT NOT NULL,
        state TEXT NOT NULL,
        source_rev INTEGER NOT NULL DEFAULT 0,
        updated_at TEXT NOT NULL,
        PRIMARY KEY (page_title, lang)
    )`,
	`CREATE TABLE IF NOT EXISTS termbase (
        lang TEXT NOT NULL,
        term TEXT NOT NULL,
        preferred TEXT NOT NULL DEFAULT '',
        forbidden INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (lang, term)
    )`,
	`CREATE TABLE IF NOT EXISTS glossary_tasks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        page_title TEXT NOT NULL,
        lang TEXT NOT NULL,
        segment_key TEXT NOT NULL DEFAULT '',
        term TEXT NOT NULL,
        detail TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        uuid TEXT NOT NULL,
        mode TEXT NOT NULL,
        target_langs TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        started_at TEXT NOT NULL,
        finished_at TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS run_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id INTEGER NOT NULL,
        kind TEXT NOT NULL,
        page_title TEXT,
        lang TEXT,
        status TEXT NOT NULL,
        message TEXT,
        created_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id, status)`,
	`CREATE TABLE IF NOT EXISTS cursors (
        name TEXT PRIMARY KEY,
        value TEXT,
        updated_at TEXT NOT NULL
    )`,
}
