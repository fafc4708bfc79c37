package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind distinguishes an exam paper from its solution
type Kind int

const (
	KindExam Kind = iota
	KindSolution
)

func (k Kind) String() string {
	switch k {
	case KindExam:
		return "exam"
	case KindSolution:
		return "solution"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SolutionSuffix is appended to an exam id to form the id of its solution
const SolutionSuffix = "_solution"

// Record is one fetchable document. Records are immutable once built.
type Record struct {
	ID        string
	Kind      Kind
	GroupID   string
	Reference Reference
	Category  string
	Title     string
	Locator   string
}

// Key identifies a record inside a catalog
type Key struct {
	ID   string
	Kind Kind
}

func (r Record) Key() Key {
	return Key{ID: r.ID, Kind: r.Kind}
}

func (r Record) IsExam() bool {
	return r.Kind == KindExam
}

// FileName is the name the document is stored under in the destination
func (r Record) FileName() string {
	return r.ID + ".pdf"
}

// Reference is a parsed display reference number. A missing reference sorts after every present one.
type Reference struct {
	Number  int
	Present bool
}

// NoReference is the value used when a listing carries no usable reference label
var NoReference = Reference{}

// Less orders references ascending with absent references last
func (r Reference) Less(other Reference) bool {
	if r.Present != other.Present {
		return r.Present
	}
	return r.Present && r.Number < other.Number
}

func (r Reference) String() string {
	if !r.Present {
		return "-"
	}
	return "#" + strconv.Itoa(r.Number)
}

var referencePattern = regexp.MustCompile(`#(\d+)`)

// ParseReference extracts the first "#<digits>" number from a label.
// Labels without such a number, or with one too large for an int, yield NoReference.
func ParseReference(label string) Reference {
	match := referencePattern.FindStringSubmatch(label)
	if match == nil {
		return NoReference
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return NoReference
	}
	return Reference{Number: n, Present: true}
}

// Descriptor is a raw document entry as produced by a listing page
type Descriptor struct {
	ID              string
	Category        string
	Title           string
	ReferenceLabel  string
	ExamLocator     string
	SolutionLocator string
}
