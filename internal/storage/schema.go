package storage

// schema holds the DDL applied by PostgresRepository at startup. Tables are
// document-style: scalar columns for everything the engine filters on,
// JSONB for the nested sub-records.
//
// Uniqueness is enforced here, at the storage level, never by a
// check-then-insert sequence in the services:
//   - batches.batch_number
//   - custody_ledgers (batch_id, batch_number)
//   - organizations.organization_id
//   - patients.patient_id
// Constraint names are stable; postgres.go maps them back to field names when
// translating SQLSTATE 23505 violations.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id                   TEXT PRIMARY KEY,
		batch_number         TEXT NOT NULL,
		name                 TEXT NOT NULL,
		active_ingredient    TEXT NOT NULL,
		dosage               TEXT NOT NULL DEFAULT '',
		form                 TEXT NOT NULL DEFAULT '',
		production_date      TIMESTAMPTZ NOT NULL,
		expiry_date          TIMESTAMPTZ NOT NULL,
		quality_test         JSONB NOT NULL DEFAULT '{}',
		storage_conditions   JSONB NOT NULL DEFAULT '{}',
		manufacturer_id      TEXT NOT NULL,
		distribution_status  TEXT NOT NULL DEFAULT 'manufactured',
		distribution_history JSONB NOT NULL DEFAULT '[]',
		is_recalled          BOOLEAN NOT NULL DEFAULT FALSE,
		recall_reason        TEXT NOT NULL DEFAULT '',
		recalled_at          TIMESTAMPTZ,
		anchor               JSONB NOT NULL DEFAULT '{"state":"pending"}',
		code                 JSONB,
		created_by           TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT batches_batch_number_key UNIQUE (batch_number)
	)`,
	`CREATE INDEX IF NOT EXISTS batches_anchor_id_idx
		ON batches ((anchor->>'anchor_id'))`,

	`CREATE TABLE IF NOT EXISTS custody_ledgers (
		id               TEXT PRIMARY KEY,
		batch_id         TEXT NOT NULL,
		batch_number     TEXT NOT NULL,
		steps            JSONB NOT NULL DEFAULT '[]',
		current_location JSONB,
		quality_checks   JSONB NOT NULL DEFAULT '[]',
		access_log       JSONB NOT NULL DEFAULT '[]',
		status           TEXT NOT NULL DEFAULT 'active',
		recall           JSONB NOT NULL DEFAULT '{"recalled":false}',
		created_by       TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT custody_ledgers_batch_key UNIQUE (batch_id, batch_number)
	)`,

	`CREATE TABLE IF NOT EXISTS signatures (
		id                TEXT PRIMARY KEY,
		target_type       TEXT NOT NULL,
		target_id         TEXT NOT NULL,
		signed_by         TEXT NOT NULL,
		data_hash         TEXT NOT NULL,
		signature         TEXT NOT NULL,
		public_key        TEXT NOT NULL,
		certificate       JSONB NOT NULL,
		timestamp_proof   JSONB NOT NULL,
		status            TEXT NOT NULL DEFAULT 'active',
		revocation_reason TEXT NOT NULL DEFAULT '',
		revoked_at        TIMESTAMPTZ,
		revoked_by        TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS signatures_target_idx
		ON signatures (target_type, target_id)`,

	`CREATE TABLE IF NOT EXISTS scan_logs (
		id               TEXT PRIMARY KEY,
		raw_input        TEXT NOT NULL,
		batch_id         TEXT,
		outcome          TEXT NOT NULL,
		alert_type       TEXT NOT NULL DEFAULT '',
		error_text       TEXT NOT NULL DEFAULT '',
		strategies_tried JSONB NOT NULL DEFAULT '[]',
		actor_id         TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS organizations (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name            TEXT NOT NULL,
		role            TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT organizations_organization_id_key UNIQUE (organization_id)
	)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id         TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT patients_patient_id_key UNIQUE (patient_id)
	)`,
}

// uniqueConstraintFields maps constraint names from the schema to the field
// name reported in apperr.DuplicateKeyError.
var uniqueConstraintFields = map[string]string{
	"batches_batch_number_key":          "batch_number",
	"custody_ledgers_batch_key":         "batch_id",
	"organizations_organization_id_key": "organization_id",
	"patients_patient_id_key":           "patient_id",
	"batches_pkey":                      "id",
	"custody_ledgers_pkey":              "id",
	"signatures_pkey":                   "id",
	"scan_logs_pkey":                    "id",
	"organizations_pkey":                "id",
	"patients_pkey":                     "id",
}
