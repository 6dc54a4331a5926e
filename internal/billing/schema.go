package billing

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
    id                BIGSERIAL PRIMARY KEY,
    name              TEXT NOT NULL UNIQUE,
    monthly_limit_gb  DOUBLE PRECISION NOT NULL DEFAULT 1000
);

CREATE TABLE IF NOT EXISTS data_usage (
    id         BIGSERIAL PRIMARY KEY,
    client_id  BIGINT NOT NULL REFERENCES clients(id) ON DELETE RESTRICT,
    date       DATE NOT NULL,
    usage_gb   DOUBLE PRECISION NOT NULL CHECK (usage_gb >= 0)
);

CREATE INDEX IF NOT EXISTS idx_data_usage_client_date ON data_usage(client_id, date);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id               UUID PRIMARY KEY,
    source           TEXT NOT NULL,
    status           TEXT NOT NULL,
    rows_accepted    INTEGER NOT NULL DEFAULT 0,
    rows_dropped     INTEGER NOT NULL DEFAULT 0,
    clients_created  INTEGER NOT NULL DEFAULT 0,
    error            TEXT NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ NOT NULL,
    finished_at      TIMESTAMPTZ
);
`
