// Package models contains domain types for the question engine.
package models

import "fmt"

// EntityLevel is the scope a question applies to. PROPOSAL and PROPERTY are
// singleton contexts: their entity set is a single null slot.
type EntityLevel string

const (
	LevelProposal        EntityLevel = "PROPOSAL"
	LevelBorrower        EntityLevel = "BORROWER"
	LevelJob             EntityLevel = "JOB"
	LevelAsset           EntityLevel = "ASSET"
	LevelLiability       EntityLevel = "LIABILITY"
	LevelProperty        EntityLevel = "PROPERTY"
	LevelRealEstateOwned EntityLevel = "REAL_ESTATE_OWNED"
)

// EntityLevels is the fixed evaluation order used by the evaluator.
var EntityLevels = []EntityLevel{
	LevelProposal,
	LevelBorrower,
	LevelJob,
	LevelAsset,
	LevelLiability,
	LevelProperty,
	LevelRealEstateOwned,
}

// ParseEntityLevel validates a level string from configuration.
func ParseEntityLevel(s string) (EntityLevel, error) {
	level := EntityLevel(s)
	for _, known := range EntityLevels {
		if level == known {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown entity level %q", s)
}

// IsSingleton reports whether the level has no entity population of its own
// and evaluates against the flattened proposal fields alone.
func (l EntityLevel) IsSingleton() bool {
	return l == LevelProposal || l == LevelProperty
}

// EntityRef is one instance of a borrower, job, asset, liability, or owned
// property, materialized from the system of record per request.
type EntityRef struct {
	PID         string           `json:"pid" msgpack:"pid"`
	DisplayName string           `json:"display_name" msgpack:"display_name"`
	Fields      map[string]Value `json:"fields" msgpack:"fields"`
}
