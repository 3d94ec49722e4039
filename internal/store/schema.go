package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    hypothesis TEXT NOT NULL DEFAULT '',
    test_type TEXT NOT NULL,
    primary_metric TEXT NOT NULL,
    confidence_threshold REAL NOT NULL,
    minimum_sample_size INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    control_variant_id TEXT NOT NULL,
    test_variant_ids TEXT NOT NULL,
    traffic_split TEXT NOT NULL,
    started_at INTEGER,
    ended_at INTEGER,
    scheduled_end_at INTEGER,
    winner_variant_id TEXT,
    winner_confidence REAL,
    winner_declared_at INTEGER,
    results_summary TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_status ON tests(status);
CREATE INDEX IF NOT EXISTS idx_tests_owner ON tests(owner_id);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    is_control INTEGER NOT NULL DEFAULT 0,
    content_type TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL,
    traffic_percentage INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_variants_test ON variants(test_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_one_control ON variants(test_id) WHERE is_control = 1;

CREATE TABLE IF NOT EXISTS daily_results (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
    variant_id TEXT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
    owner_id TEXT NOT NULL DEFAULT '',
    result_date TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    clicks INTEGER NOT NULL DEFAULT 0,
    saves INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    spend TEXT NOT NULL DEFAULT '0',
    revenue TEXT NOT NULL DEFAULT '0',
    click_rate REAL,
    save_rate REAL,
    conversion_rate REAL,
    cumulative_impressions INTEGER NOT NULL DEFAULT 0,
    cumulative_conversions INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (test_id, variant_id, result_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_results_test ON daily_results(test_id, result_date);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    hypothesis TEXT NOT NULL DEFAULT '',
    test_type TEXT NOT NULL,
    primary_metric TEXT NOT NULL,
    confidence_threshold DOUBLE PRECISION NOT NULL,
    minimum_sample_size BIGINT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    control_variant_id TEXT NOT NULL,
    test_variant_ids JSONB NOT NULL,
    traffic_split JSONB NOT NULL,
    started_at BIGINT,
    ended_at BIGINT,
    scheduled_end_at BIGINT,
    winner_variant_id TEXT,
    winner_confidence DOUBLE PRECISION,
    winner_declared_at BIGINT,
    results_summary JSONB,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_status ON tests(status);
CREATE INDEX IF NOT EXISTS idx_tests_owner ON tests(owner_id);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    is_control BOOLEAN NOT NULL DEFAULT FALSE,
    content_type TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    config JSONB NOT NULL,
    traffic_percentage INTEGER NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_variants_test ON variants(test_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_one_control ON variants(test_id) WHERE is_control;

CREATE TABLE IF NOT EXISTS daily_results (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
    variant_id TEXT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
    owner_id TEXT NOT NULL DEFAULT '',
    result_date DATE NOT NULL,
    impressions BIGINT NOT NULL DEFAULT 0,
    clicks BIGINT NOT NULL DEFAULT 0,
    saves BIGINT NOT NULL DEFAULT 0,
    conversions BIGINT NOT NULL DEFAULT 0,
    spend NUMERIC(20, 6) NOT NULL DEFAULT 0,
    revenue NUMERIC(20, 6) NOT NULL DEFAULT 0,
    click_rate DOUBLE PRECISION,
    save_rate DOUBLE PRECISION,
    conversion_rate DOUBLE PRECISION,
    cumulative_impressions BIGINT NOT NULL DEFAULT 0,
    cumulative_conversions BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (test_id, variant_id, result_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_results_test ON daily_results(test_id, result_date);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
