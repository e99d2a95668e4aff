package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memsql/memsql-loader/internal/types"
)

func TestBuildLoadStatementMinimal(t *testing.T) {
	opts := types.LoadOptions{DuplicateKeyMethod: types.DupError}
	target := types.TargetSpec{Database: "db", Table: "tbl"}

	stmt := BuildLoadStatement(opts, target, "file-1", "/tmp/pipe-1")

	assert.Contains(t, stmt, "LOAD DATA LOCAL INFILE '/tmp/pipe-1'")
	assert.Contains(t, stmt, "INTO TABLE `db`.`tbl`")
	assert.NotContains(t, stmt, "IGNORE")
	assert.NotContains(t, stmt, "REPLACE")
}

func TestBuildLoadStatementNonLocal(t *testing.T) {
	opts := types.LoadOptions{NonLocalLoad: true}
	stmt := BuildLoadStatement(opts, types.TargetSpec{Database: "db", Table: "t"}, "", "/path/to/file")
	assert.Contains(t, stmt, "LOAD DATA INFILE")
	assert.NotContains(t, stmt, "LOAD DATA LOCAL")
}

func TestBuildLoadStatementDuplicateKeyMethod(t *testing.T) {
	opts := types.LoadOptions{DuplicateKeyMethod: types.DupIgnore}
	stmt := BuildLoadStatement(opts, types.TargetSpec{Database: "db", Table: "t"}, "", "/f")
	assert.Contains(t, stmt, "IGNORE INTO TABLE")

	opts.DuplicateKeyMethod = types.DupReplace
	stmt = BuildLoadStatement(opts, types.TargetSpec{Database: "db", Table: "t"}, "", "/f")
	assert.Contains(t, stmt, "REPLACE")
}

func TestBuildLoadStatementFieldsAndLines(t *testing.T) {
	comma, quoteCh, nl := ",", `"`, "\n"
	ignore := 1
	opts := types.LoadOptions{
		Fields: types.FieldsSpec{Terminated: &comma, Enclosed: &quoteCh},
		Lines:  types.LinesSpec{Terminated: &nl, Ignore: &ignore},
	}
	stmt := BuildLoadStatement(opts, types.TargetSpec{Database: "db", Table: "t"}, "", "/f")

	assert.Contains(t, stmt, `FIELDS TERMINATED BY ',' ENCLOSED BY '"'`)
	assert.Contains(t, stmt, `LINES TERMINATED BY '\n'`)
	assert.Contains(t, stmt, "IGNORE 1 LINES")
}

func TestBuildLoadStatementColumnsAndFileIDColumn(t *testing.T) {
	opts := types.LoadOptions{
		Columns:      []string{"a", "b"},
		FileIDColumn: "source_file_id",
	}
	stmt := BuildLoadStatement(opts, types.TargetSpec{Database: "db", Table: "t"}, "hash-123", "/f")

	assert.Contains(t, stmt, "(`a`, `b`)")
	assert.Contains(t, stmt, "SET `source_file_id` = 'hash-123'")
}

func TestBuildLoadStatementEscapesSourceFilePath(t *testing.T) {
	stmt := BuildLoadStatement(types.LoadOptions{}, types.TargetSpec{Database: "db", Table: "t"}, "", `/tmp/it's a "path"`)
	assert.Contains(t, stmt, `/tmp/it\'s a "path"`)
}

func TestQuoteIdentEscapesBacktick(t *testing.T) {
	assert.Equal(t, "`a``b`", quoteIdent("a`b"))
}

func TestEscapeStringEscapesControlCharacters(t *testing.T) {
	got := escapeString("a\\b'c\x00d\ne\rf\x1ag")
	assert.True(t, strings.Contains(got, `\\`))
	assert.True(t, strings.Contains(got, `\'`))
	assert.True(t, strings.Contains(got, `\0`))
	assert.True(t, strings.Contains(got, `\n`))
	assert.True(t, strings.Contains(got, `\r`))
	assert.True(t, strings.Contains(got, `\Z`))
}
