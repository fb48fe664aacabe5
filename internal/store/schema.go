package store

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL,
	first_name      TEXT,
	last_name       TEXT,
	email           TEXT,
	phone           TEXT,
	company         TEXT,
	job_title       TEXT,
	address_street  TEXT,
	address_city    TEXT,
	address_state   TEXT,
	address_zip     TEXT,
	address_country TEXT,
	source          TEXT,
	notes           TEXT,
	budget_min      NUMERIC,
	budget_max      NUMERIC,
	date_of_birth   DATE,
	place_of_birth  TEXT,
	tags            TEXT[],
	role            TEXT,
	category        TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id, created_at);

CREATE TABLE IF NOT EXISTS documents (
	id                       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id                  TEXT NOT NULL,
	file_url                 TEXT NOT NULL,
	file_type                TEXT NOT NULL,
	ocr_text                 TEXT,
	ocr_status               TEXT NOT NULL DEFAULT 'pending',
	ocr_page_count           INTEGER,
	ocr_processed_at         TIMESTAMPTZ,
	category                 TEXT,
	importance_score         INTEGER,
	extracted_names          JSONB,
	extracted_addresses      JSONB,
	extracted_date_of_birth  TEXT,
	extracted_place_of_birth TEXT,
	document_date            TEXT,
	due_date                 TEXT,
	description              TEXT,
	has_signature            BOOLEAN,
	ai_confidence            NUMERIC,
	ai_metadata              JSONB,
	ai_labeled_at            TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_contacts (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	contact_id  TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (document_id, contact_id)
);

CREATE TABLE IF NOT EXISTS ocr_queue (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	leased_by     TEXT,
	leased_at     TIMESTAMPTZ,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_labeling_queue (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	trigger_type  TEXT NOT NULL DEFAULT 'manual',
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	leased_by     TEXT,
	leased_at     TIMESTAMPTZ,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_import_jobs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id        TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'analyzing',
	mode           TEXT NOT NULL DEFAULT 'safe',
	file_url       TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	column_mapping JSONB,
	headers        JSONB,
	stats          JSONB,
	attempts       INTEGER NOT NULL DEFAULT 0,
	leased_by      TEXT,
	leased_at      TIMESTAMPTZ,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_import_rows (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id             TEXT NOT NULL REFERENCES contact_import_jobs(id) ON DELETE CASCADE,
	row_number         INTEGER NOT NULL,
	raw_data           JSONB NOT NULL,
	mapped_data        JSONB,
	status             TEXT NOT NULL,
	matched_contact_id TEXT,
	match_confidence   NUMERIC,
	conflicts          JSONB,
	decision           TEXT,
	overwrite_fields   JSONB,
	result_status      TEXT,
	result_action      TEXT,
	result_contact_id  TEXT,
	error_message      TEXT,
	processed_at       TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ocr_queue_claim ON ocr_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_ai_labeling_queue_claim ON ai_labeling_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_contact_import_jobs_claim ON contact_import_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_contact_import_rows_job ON contact_import_rows(job_id, row_number);
`
