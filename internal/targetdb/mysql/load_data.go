package mysql

import (
	"fmt"
	"strings"

	"github.com/memsql/memsql-loader/internal/types"
)

// escapeString escapes a value for use inside a single-quoted MySQL string
// literal. LOAD DATA INFILE cannot be prepared (MySQL rejects it from the
// binary protocol), so literals must be inlined rather than bound, mirroring
// the text-protocol query() call in original_source/memsql_loader/
// execution/loader.py.
var escapeReplacer = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func escapeString(s string) string { return escapeReplacer.Replace(s) }

func quote(s string) string { return "'" + escapeString(s) + "'" }

func quoteIdent(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

// BuildLoadStatement builds the LOAD DATA [LOCAL] INFILE statement for
// opts against sourceFile, mirroring db/load_data.py's LoadDataStmt.build().
func BuildLoadStatement(opts types.LoadOptions, target types.TargetSpec, fileID string, sourceFile string) string {
	var b strings.Builder
	b.WriteString("LOAD DATA ")
	if !opts.NonLocalLoad {
		b.WriteString("LOCAL ")
	}
	fmt.Fprintf(&b, "INFILE %s ", quote(sourceFile))

	method := strings.ToUpper(string(opts.DuplicateKeyMethod))
	if method != "" && method != "ERROR" {
		b.WriteString(method)
		b.WriteString(" ")
	}

	fmt.Fprintf(&b, "INTO TABLE %s.%s\n", quoteIdent(target.Database), quoteIdent(target.Table))

	if fields := buildFieldsSpec(opts.Fields); fields != "" {
		b.WriteString(fields)
		b.WriteString("\n")
	}
	if lines := buildLinesSpec(opts.Lines); lines != "" {
		b.WriteString(lines)
		b.WriteString("\n")
	}
	if opts.Lines.Ignore != nil {
		fmt.Fprintf(&b, "IGNORE %d LINES\n", *opts.Lines.Ignore)
	}
	if len(opts.Columns) > 0 {
		cols := make([]string, len(opts.Columns))
		for i, c := range opts.Columns {
			cols[i] = quoteIdent(c)
		}
		fmt.Fprintf(&b, "(%s)\n", strings.Join(cols, ", "))
	}
	if opts.FileIDColumn != "" {
		fmt.Fprintf(&b, "SET %s = %s\n", quoteIdent(opts.FileIDColumn), quote(fileID))
	}

	return b.String()
}

func buildFieldsSpec(f types.FieldsSpec) string {
	var parts []string
	if f.Terminated != nil {
		parts = append(parts, "TERMINATED BY "+quote(*f.Terminated))
	}
	if f.Enclosed != nil {
		parts = append(parts, "ENCLOSED BY "+quote(*f.Enclosed))
	}
	if f.Escaped != nil {
		parts = append(parts, "ESCAPED BY "+quote(*f.Escaped))
	}
	if len(parts) == 0 {
		return ""
	}
	return "FIELDS " + strings.Join(parts, " ")
}

func buildLinesSpec(l types.LinesSpec) string {
	var parts []string
	if l.Starting != nil {
		parts = append(parts, "STARTING BY "+quote(*l.Starting))
	}
	if l.Terminated != nil {
		parts = append(parts, "TERMINATED BY "+quote(*l.Terminated))
	}
	if len(parts) == 0 {
		return ""
	}
	return "LINES " + strings.Join(parts, " ")
}
