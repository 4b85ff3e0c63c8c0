package postgres

const schema = `
-- Tenant records read by scans
CREATE TABLE IF NOT EXISTS organizations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS contacts (
    organization_id TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    PRIMARY KEY (organization_id, id)
);

CREATE TABLE IF NOT EXISTS companies (
    organization_id TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    PRIMARY KEY (organization_id, id)
);

CREATE TABLE IF NOT EXISTS publications (
    organization_id TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    PRIMARY KEY (organization_id, id)
);

-- Matching candidates
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    match_key TEXT NOT NULL,
    status TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    data JSONB NOT NULL,
    UNIQUE (entity_type, match_key)
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_candidates_score ON candidates(score);
CREATE INDEX IF NOT EXISTS idx_candidates_type_status ON candidates(entity_type, status);

CREATE TABLE IF NOT EXISTS candidate_organizations (
    candidate_id TEXT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
    organization_id TEXT NOT NULL,
    PRIMARY KEY (candidate_id, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_candidate_organizations_org ON candidate_organizations(organization_id);

-- Scan job history (append-only once finished)
CREATE TABLE IF NOT EXISTS scan_jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    triggered_by TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    data JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_started_at ON scan_jobs(started_at);

-- Settings singletons
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

-- Engine events
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    job_id TEXT NOT NULL DEFAULT '',
    candidate_id TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    data JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_job ON events(job_id);

-- Library ownership
ALTER TABLE organizations ADD COLUMN IF NOT EXISTS type TEXT NOT NULL DEFAULT '';

-- Field conflict reviews
CREATE TABLE IF NOT EXISTS field_conflicts (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    field TEXT NOT NULL,
    status TEXT NOT NULL,
    priority_rank INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    data JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_conflicts_status ON field_conflicts(status, priority_rank, created_at);
CREATE INDEX IF NOT EXISTS idx_field_conflicts_entity ON field_conflicts(entity_id, field);
`
