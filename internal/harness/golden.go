package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/wire"
)

// Snapshot captures the observable outcome of a scenario.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Dirty        []string
	Set          bson.D
	Unset        []string
	Document     bson.D
}

// toCanonicalMap converts a Snapshot to a map for canonical JSON
// serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	dirtyList := make([]any, len(s.Dirty))
	for i, n := range s.Dirty {
		dirtyList[i] = n
	}
	unsetList := make([]any, len(s.Unset))
	for i, k := range s.Unset {
		unsetList[i] = k
	}
	set := s.Set
	if set == nil {
		set = bson.D{}
	}
	doc := s.Document
	if doc == nil {
		doc = bson.D{}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"dirty":         dirtyList,
		"set":           set,
		"unset":         unsetList,
		"document":      doc,
	}
}

func snapshotOf(name string, result *Result) *Snapshot {
	s := &Snapshot{
		ScenarioName: name,
		Dirty:        result.Dirty,
		Document:     result.Document,
	}
	if result.ChangeSet != nil {
		s.Set = result.ChangeSet.Set
		s.Unset = result.ChangeSet.Unset
	}
	return s
}

// RunWithGolden executes a scenario and compares its outcome against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the outcome doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	out, err := wire.MarshalCanonical(snapshotOf(scenarioName, result).toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, out)

	return nil
}
