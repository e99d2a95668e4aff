package jobstore

// Schema is the jobs table DDL, grounded on original_source/memsql_loader/
// loader_db/jobs.py. id is the UUID prefix users reference from the CLI;
// spec is the JSON-encoded types.JobSpec.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id      TEXT PRIMARY KEY,
	created TEXT NOT NULL,
	spec    TEXT NOT NULL
);
`
