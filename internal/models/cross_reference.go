package models

import "time"

// RelationType names the directed relation between two learning bits.
type RelationType string

const (
	RelationRelated     RelationType = "related"
	RelationDependsOn   RelationType = "depends_on"
	RelationSimilar     RelationType = "similar"
	RelationContradicts RelationType = "contradicts"
)

// CrossReference is a directed relation between two bits. The triple
// (source, target, relation) is the primary key.
type CrossReference struct {
	SourceBitID  string       `json:"source_bit_id" badgerhold:"index"`
	TargetBitID  string       `json:"target_bit_id" badgerhold:"index"`
	RelationType RelationType `json:"relation_type"`
	Strength     float64      `json:"strength"` // [0,1]
	CreatedAt    time.Time    `json:"created_at"`
}

// Key returns the storage key for the cross reference triple.
func (c *CrossReference) Key() string {
	return c.SourceBitID + "|" + c.TargetBitID + "|" + string(c.RelationType)
}

// Valid reports whether the reference satisfies its invariants.
func (c *CrossReference) Valid() bool {
	if c.SourceBitID == "" || c.TargetBitID == "" {
		return false
	}
	switch c.RelationType {
	case RelationRelated, RelationDependsOn, RelationSimilar, RelationContradicts:
	default:
		return false
	}
	return c.Strength >= 0 && c.Strength <= 1
}
