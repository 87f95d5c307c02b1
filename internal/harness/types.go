package harness

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/changeset"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expectations match.
	Pass bool `json:"pass"`

	// Dirty is the dirty set observed after the mutations.
	Dirty []string `json:"dirty"`

	// ChangeSet is the change set built from the mutated instance.
	ChangeSet *changeset.ChangeSet `json:"-"`

	// Document is the deflated instance after the mutations.
	Document bson.D `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Dirty:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
