package domain

import "time"

// DefaultParent is suggested when no project scores above zero.
const DefaultParent = "Random"

// Level tags a candidate with the hierarchy level it was scored at.
type Level int

const (
	LevelParent Level = iota
	LevelItem
)

func (l Level) String() string {
	if l == LevelItem {
		return "ITEM"
	}
	return "PARENT"
}

type Candidate struct {
	Name  string
	Score int
	Type  Level
}

type ClassificationResult struct {
	SuggestedItemID   string
	SuggestedParentID string
	IsAmbiguous       bool
	AmbiguityReason   string
	Candidates        []Candidate
}

// Bucket identifies one of the four grouping passes.
type Bucket int

const (
	BucketLinked Bucket = iota
	BucketPackage
	BucketProject
	BucketOther
)

func (b Bucket) String() string {
	switch b {
	case BucketLinked:
		return "Linked"
	case BucketPackage:
		return "Package"
	case BucketProject:
		return "Project"
	default:
		return "Other"
	}
}

type GroupingResult struct {
	Linked          []WorkItem
	Package         []WorkItem
	Project         []WorkItem
	Other           []WorkItem
	DetectedPackage string
	DetectedProject string
}

// Buckets returns the four lists in pass order.
func (g GroupingResult) Buckets() [][]WorkItem {
	return [][]WorkItem{g.Linked, g.Package, g.Project, g.Other}
}

// Len is the total number of items across all buckets.
func (g GroupingResult) Len() int {
	return len(g.Linked) + len(g.Package) + len(g.Project) + len(g.Other)
}

// TriageRecord is the audit entry written after a message has been triaged.
type TriageRecord struct {
	ID                int64
	MessageID         string
	Subject           string
	Sender            string
	LinkedItemID      string
	MatchKind         string
	SuggestedParentID string
	SuggestedItemID   string
	Ambiguous         bool
	AmbiguityReason   string
	TriagedAt         time.Time
}
