package models

import (
	"fmt"
	"time"
)

// FileType is the measurement modality declared by an instrument file.
type FileType string

const (
	FileTypeTopo    FileType = "topo"
	FileTypeIVCurve FileType = "ivcurve"
	FileTypeIVMap   FileType = "ivmap"
	FileTypeIZCurve FileType = "izcurve"
)

// Existence is the tri-state outcome of a business-key lookup.
type Existence int

const (
	Absent Existence = iota
	Found
	Ambiguous
)

func (e Existence) String() string {
	switch e {
	case Absent:
		return "absent"
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("existence(%d)", int(e))
	}
}

// CommentMetadata is the structured block parsed from a creation comment.
// Present is false when the comment carried no structured metadata.
type CommentMetadata struct {
	Present   bool
	Users     string
	Substrate string
	Adsorbate string
	Prep      string
	Notebook  int
	Notes     string
}

type ExperimentMetadata struct {
	ID                int64
	CreationTimestamp string
	Comment           CommentMetadata
}

type FileRecord struct {
	ID                int64
	ExpMetadataID     int64
	CreationTimestamp string // parent business key
	FileName          string
	FileDate          string
	FileType          FileType
	FileLocation      string
}

// MetadataParent is embedded by every type-specific metadata row. FileName is the
// parent business key used to resolve FileID and ExpMetadataID at insert time.
type MetadataParent struct {
	ID            int64
	ExpMetadataID int64
	FileID        int64
	FileName      string
}

func (p MetadataParent) ParentFileName() string { return p.FileName }

type TopoMetadata struct {
	MetadataParent
	VGap   float64
	ISet   float64
	XRes   int
	YRes   int
	XInc   float64
	YInc   float64
	XYUnit string
}

type SpecMetadata struct {
	MetadataParent
	VGap    float64
	VStart  float64
	ISet    float64
	VRes    int
	VInc    float64
	VUnit   string
	XOffset float64
	YOffset float64
}

type CitsMetadata struct {
	MetadataParent
	VGap   float64
	ISet   float64
	XRes   int
	YRes   int
	XInc   float64
	YInc   float64
	XYUnit string
	VStart float64
	VRes   int
	VInc   float64
	VUnit  string
}

// FileRef is the pair of surrogate ids resolved from a file name.
type FileRef struct {
	FileID        int64
	ExpMetadataID int64
}

type FileInfo struct {
	Path     string
	Name     string
	Modality string
}

type FileFailure struct {
	FileName string
	Kind     ErrorKind
	Err      error
}

type BatchReport struct {
	RunID       string
	Ingested    []string
	Unsupported []string
	Failures    []FileFailure
	StartedAt   time.Time
	Duration    time.Duration
}
