package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// Plan is one candidate query composed for a reasoned intent.
type Plan struct {
	SQL          string `json:"sql"`
	Purpose      string `json:"purpose"`
	ExpectedRows string `json:"expected_rows"`
}

var (
	lastDaysPattern = regexp.MustCompile(`last (\d+) day`)
	isoDatePattern  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
)

// Generator composes SELECT statements from reasoner output using fixed
// templates. The model only ever chooses tables and columns; it never writes
// SQL text that reaches the database.
type Generator struct {
	cfg config.PostgresConfig
}

// NewGenerator creates a generator bound to the Postgres limits in cfg.
func NewGenerator(cfg config.PostgresConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate builds candidate plans for the reasoned intent. columnsByTable
// holds the reasoner's per-table column picks, relevantTables drives both
// projection and join order, and each foreignKeys row is a
// [table, column, foreign_table, foreign_column] tuple.
func (g *Generator) Generate(intent string, columnsByTable map[string][]string, relevantTables []string, foreignKeys [][]string) ([]Plan, error) {
	from, err := buildFromClause(relevantTables, foreignKeys)
	if err != nil {
		return nil, err
	}
	sql := g.composeSQL(buildSelectColumns(columnsByTable, relevantTables), from, buildWhereClauses(intent))
	return []Plan{{SQL: sql, Purpose: intent, ExpectedRows: "unknown"}}, nil
}

// buildSelectColumns projects up to five columns per relevant table, aliased
// so result rows stay unambiguous across joins. No usable columns falls back
// to *.
func buildSelectColumns(columnsByTable map[string][]string, relevantTables []string) []string {
	var columns []string
	for _, table := range relevantTables {
		tableColumns := columnsByTable[table]
		if len(tableColumns) > 5 {
			tableColumns = tableColumns[:5]
		}
		prefix := strings.ReplaceAll(table, ".", "_")
		for _, column := range tableColumns {
			columns = append(columns, fmt.Sprintf("%s.%s AS %s_%s", table, column, prefix, column))
		}
	}
	if len(columns) == 0 {
		return []string{"*"}
	}
	return columns
}

// buildFromClause starts from the first relevant table and LEFT JOINs every
// foreign key whose endpoints are both relevant.
func buildFromClause(relevantTables []string, foreignKeys [][]string) (string, error) {
	if len(relevantTables) == 0 {
		return "", fmt.Errorf("%w: no tables provided", apperrors.ErrGenerationEmpty)
	}
	relevant := make(map[string]struct{}, len(relevantTables))
	for _, table := range relevantTables {
		relevant[table] = struct{}{}
	}

	parts := []string{relevantTables[0]}
	for _, fk := range foreignKeys {
		if len(fk) != 4 {
			continue
		}
		leftTable, leftColumn, rightTable, rightColumn := fk[0], fk[1], fk[2], fk[3]
		if _, ok := relevant[leftTable]; !ok {
			continue
		}
		if _, ok := relevant[rightTable]; !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("LEFT JOIN %s ON %s.%s = %s.%s",
			rightTable, leftTable, leftColumn, rightTable, rightColumn))
	}
	return strings.Join(parts, " "), nil
}

// buildWhereClauses derives filters from recognizable phrases in the intent:
// a trailing-days window, an "active" status filter, and a literal ISO date
// floor. Unrecognized intents produce no WHERE clause at all.
func buildWhereClauses(intent string) []string {
	var clauses []string
	lowered := strings.ToLower(intent)

	if strings.Contains(lowered, "last") && strings.Contains(lowered, "day") {
		days := 30
		if m := lastDaysPattern.FindStringSubmatch(lowered); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				days = n
			}
		}
		clauses = append(clauses, fmt.Sprintf("created_at >= CURRENT_DATE - INTERVAL '%d days'", days))
	}

	if strings.Contains(lowered, "active") {
		clauses = append(clauses, "status = 'active'")
	}

	if m := isoDatePattern.FindStringSubmatch(lowered); m != nil {
		if day, err := time.Parse("2006-01-02", m[1]); err == nil {
			clauses = append(clauses, fmt.Sprintf("created_at >= DATE '%s'", day.Format("2006-01-02")))
		}
	}

	return clauses
}

func (g *Generator) composeSQL(selectColumns []string, from string, whereClauses []string) string {
	var b strings.Builder
	b.WriteString("SELECT\n       ")
	b.WriteString(strings.Join(selectColumns, ",\n       "))
	b.WriteString("\nFROM ")
	b.WriteString(from)
	if len(whereClauses) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(whereClauses, " AND "))
	}
	fmt.Fprintf(&b, "\nLIMIT %d;", g.cfg.SampleLimit)
	return b.String()
}
