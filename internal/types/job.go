package types

import (
	"encoding/json"
	"time"
)

// Job is a user-supplied load request: a set of source files, a destination
// table, and parsing/loading options. See original_source/memsql_loader/
// api/job.py and loader_db/jobs.py.
type Job struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Spec    JobSpec   `json:"spec"`
}

// JobSpec is the opaque spec blob persisted as JSON alongside the job row.
// Field names mirror the CLI options in original_source/memsql_loader/
// cli/load.py and the SQL template in db/load_data.py.
type JobSpec struct {
	Source     SourceSpec     `json:"source"`
	Connection ConnectionSpec `json:"connection"`
	Target     TargetSpec     `json:"target"`
	Options    LoadOptions    `json:"options"`
}

// SourceSpec describes where the input files live.
type SourceSpec struct {
	Paths         []string `json:"paths"`
	AWSAccessKey  string   `json:"aws_access_key,omitempty"`
	AWSSecretKey  string   `json:"aws_secret_key,omitempty"`
	HDFSHost      string   `json:"hdfs_host,omitempty"`
	WebHDFSPort   int      `json:"webhdfs_port,omitempty"`
	HDFSUser      string   `json:"hdfs_user,omitempty"`
}

// ConnectionSpec is the target database's connection parameters.
type ConnectionSpec struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// TargetSpec names the destination table.
type TargetSpec struct {
	Database string `json:"database"`
	Table    string `json:"table"`
}

// FieldsSpec mirrors LOAD DATA's FIELDS clause options.
type FieldsSpec struct {
	Terminated *string `json:"terminated,omitempty"`
	Enclosed   *string `json:"enclosed,omitempty"`
	Escaped    *string `json:"escaped,omitempty"`
}

// LinesSpec mirrors LOAD DATA's LINES clause options.
type LinesSpec struct {
	Starting   *string `json:"starting,omitempty"`
	Terminated *string `json:"terminated,omitempty"`
	Ignore     *int    `json:"ignore,omitempty"`
}

// DuplicateKeyMethod controls LOAD DATA's conflict handling.
type DuplicateKeyMethod string

const (
	DupError   DuplicateKeyMethod = "ERROR"
	DupIgnore  DuplicateKeyMethod = "IGNORE"
	DupReplace DuplicateKeyMethod = "REPLACE"
)

// LoadOptions mirrors db/load_data.py's LoadDataStmt inputs.
type LoadOptions struct {
	Fields            FieldsSpec         `json:"fields"`
	Lines             LinesSpec          `json:"lines"`
	Columns           []string           `json:"columns,omitempty"`
	FileIDColumn      string             `json:"file_id_column,omitempty"`
	NonLocalLoad      bool               `json:"non_local_load,omitempty"`
	DuplicateKeyMethod DuplicateKeyMethod `json:"duplicate_key_method"`
	Script            string             `json:"script,omitempty"`
}

// HasFileID reports whether deduplication-by-reload is configured, mirroring
// Job.has_file_id() in the Python API.
func (s *JobSpec) HasFileID() bool {
	return s.Options.FileIDColumn != ""
}

// MarshalSpec serializes a JobSpec for storage in the jobs.spec column.
func MarshalSpec(s JobSpec) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalSpec parses a jobs.spec column value back into a JobSpec.
func UnmarshalSpec(raw string) (JobSpec, error) {
	var s JobSpec
	if raw == "" {
		return s, nil
	}
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}
