package queue

// Schema is the tasks table DDL, grounded on original_source/memsql_loader/
// util/apsw_sql_step_queue/queue.py's primary_table_definition. Columns map
// 1:1 onto internal/types.Task; data/steps are JSON text, matching the
// Python implementation's json.dumps/json.loads columns.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id           TEXT NOT NULL,
	created          TEXT NOT NULL,
	data             TEXT NOT NULL DEFAULT '{}',
	file_id          TEXT NOT NULL DEFAULT '',
	md5              TEXT,
	bytes_total      INTEGER,
	bytes_downloaded INTEGER,
	download_rate    INTEGER,
	execution_id     TEXT,
	started          TEXT,
	last_contact     TEXT,
	finished         TEXT,
	result           TEXT NOT NULL DEFAULT '',
	steps            TEXT NOT NULL DEFAULT '[]',
	update_count     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tasks_job_id ON tasks(job_id);
CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(execution_id, finished, last_contact);
CREATE INDEX IF NOT EXISTS idx_tasks_job_file_id ON tasks(job_id, file_id);
`
