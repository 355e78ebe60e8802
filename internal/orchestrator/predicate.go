package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivoronin/attachmentscan/internal/config"
)

const orderClause = "ORDER BY created ASC"

// BuildPredicate assembles the search predicate per spec.md §4.6: either
// the operator's custom predicate verbatim (with the mandatory ordering
// clause appended if it is missing one), or a predicate assembled from a
// project list and date range, defaulting to a config.DefaultLookbackYears
// lookback when no explicit start date is given.
//
// A total ordering clause is mandatory: pagination correctness depends on
// the remote returning issues in a stable order across pages, and resume
// correctness depends on that order being reproducible across runs.
func BuildPredicate(f config.Filters) string {
	if f.CustomPredicate != "" {
		if hasOrderClause(f.CustomPredicate) {
			return f.CustomPredicate
		}
		return f.CustomPredicate + " " + orderClause
	}

	var clauses []string
	if len(f.Projects) > 0 {
		clauses = append(clauses, fmt.Sprintf("project IN (%s)", joinQuoted(f.Projects)))
	}

	from := f.DateFrom
	if from == "" {
		from = time.Now().AddDate(-config.DefaultLookbackYears, 0, 0).Format("2006-01-02")
	}
	clauses = append(clauses, fmt.Sprintf("created >= %q", from))

	if f.DateTo != "" {
		clauses = append(clauses, fmt.Sprintf("created <= %q", f.DateTo))
	}

	return strings.Join(clauses, " AND ") + " " + orderClause
}

func hasOrderClause(predicate string) bool {
	return strings.Contains(strings.ToUpper(predicate), "ORDER BY")
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}
