package orchestrator

import (
	"strings"
	"testing"

	"github.com/ivoronin/attachmentscan/internal/config"
)

func TestBuildPredicateCustomGetsOrderAppended(t *testing.T) {
	p := BuildPredicate(config.Filters{CustomPredicate: "project = FOO"})
	if !strings.HasSuffix(p, orderClause) {
		t.Errorf("expected order clause appended, got %q", p)
	}
}

func TestBuildPredicateCustomWithOwnOrderIsUntouched(t *testing.T) {
	custom := "project = FOO order by updated desc"
	p := BuildPredicate(config.Filters{CustomPredicate: custom})
	if p != custom {
		t.Errorf("expected custom predicate left untouched, got %q", p)
	}
}

func TestBuildPredicateAssembledFromProjectsAndDates(t *testing.T) {
	p := BuildPredicate(config.Filters{
		Projects: []string{"FOO", "BAR"},
		DateFrom: "2020-01-01",
		DateTo:   "2020-12-31",
	})
	if !strings.Contains(p, `project IN (`) {
		t.Errorf("expected project clause, got %q", p)
	}
	if !strings.Contains(p, `created >= "2020-01-01"`) {
		t.Errorf("expected date_from clause, got %q", p)
	}
	if !strings.Contains(p, `created <= "2020-12-31"`) {
		t.Errorf("expected date_to clause, got %q", p)
	}
	if !strings.HasSuffix(p, orderClause) {
		t.Errorf("expected order clause, got %q", p)
	}
}

func TestBuildPredicateDefaultsLookbackWhenNoDateFrom(t *testing.T) {
	p := BuildPredicate(config.Filters{Projects: []string{"FOO"}})
	if !strings.Contains(p, "created >=") {
		t.Errorf("expected a default created >= clause, got %q", p)
	}
}
