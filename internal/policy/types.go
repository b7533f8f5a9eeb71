// Package policy loads per-task-type defaults for required_submissions and
// max_attempts. The task market's core invariants don't special-case any
// type, but operators commonly want a harder task type (more submissions
// per quorum) or a flakier one (more retry budget) to differ from the
// global defaults without a code change.
package policy

// TypePolicy overrides the global quorum/attempt-budget defaults for a
// single task type. A zero field means "use the global default."
type TypePolicy struct {
	Type                string `yaml:"type" json:"type"`
	RequiredSubmissions int    `yaml:"required_submissions,omitempty" json:"required_submissions,omitempty"`
	MaxAttempts         int    `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}
