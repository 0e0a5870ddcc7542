// Package instrument describes the parsed instrument file consumed by ingestion.
// Decoding the vendor binary format happens outside this module; Reader is the seam.
package instrument

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

// ScanInfo is the physical-parameter map of one scan direction.
type ScanInfo struct {
	Type      string     `json:"type"`
	Comment   string     `json:"comment"`
	Date      string     `json:"date"`
	Direction string     `json:"direction"`
	XRes      int        `json:"xres"`
	YRes      int        `json:"yres"`
	XInc      float64    `json:"xinc"`
	YInc      float64    `json:"yinc"`
	UnitXY    string     `json:"unitxy"`
	VGap      float64    `json:"vgap"`
	Current   float64    `json:"current"`
	VStart    float64    `json:"vstart"`
	VRes      int        `json:"vres"`
	VInc      float64    `json:"vinc"`
	UnitV     string     `json:"unitv"`
	Offset    [2]float64 `json:"offset"`
}

type Scan struct {
	Info ScanInfo  `json:"info"`
	Data []float64 `json:"data"`
}

type File struct {
	Path  string
	Name  string
	Scans []Scan
}

// Type returns the data type declared by the first scan, which every file has.
func (f *File) Type() models.FileType {
	if len(f.Scans) == 0 {
		return ""
	}
	return models.FileType(f.Scans[0].Info.Type)
}

func (f *File) NumberOfScans() int { return len(f.Scans) }

// Info returns the first scan's parameters.
func (f *File) Info() ScanInfo {
	if len(f.Scans) == 0 {
		return ScanInfo{}
	}
	return f.Scans[0].Info
}

// Location is the file path with forward slashes, as stored in stm_files.
func (f *File) Location() string {
	return strings.ReplaceAll(f.Path, `\`, "/")
}

type Reader interface {
	Read(path string) (*File, error)
}

// JSONReader loads the sidecar "<flat file>.json" written by the vendor export.
type JSONReader struct{}

func NewJSONReader() *JSONReader { return &JSONReader{} }

func (r *JSONReader) Read(path string) (*File, error) {
	data, err := os.ReadFile(path + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to open scan export for %s: %w", path, err)
	}

	var payload struct {
		Scans []Scan `json:"scans"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode scan export for %s: %w", path, err)
	}
	if len(payload.Scans) == 0 {
		return nil, fmt.Errorf("scan export for %s contains no scans", path)
	}

	return &File{Path: filepath.Clean(path), Name: filepath.Base(path), Scans: payload.Scans}, nil
}

// creationLabelLen is the width of the label that precedes the user text in the
// third segment of the raw instrument comment.
const creationLabelLen = 16

// CreationComment extracts the user-entered block from the raw scan comment.
// Comments that do not have the instrument's three segment layout are returned as is.
func CreationComment(raw string) string {
	segments := strings.Split(raw, ";")
	if len(segments) < 3 {
		return raw
	}
	block := segments[2]
	if len(block) <= creationLabelLen {
		return ""
	}
	return block[creationLabelLen:]
}

const flatSuffix = "_flat"

// IsFlatFile reports whether name follows the exported flat file naming convention.
func IsFlatFile(name string) bool {
	return strings.HasSuffix(name, flatSuffix)
}

// Modality classifies a flat file by its channel suffix.
func Modality(name string) string {
	switch {
	case strings.HasSuffix(name, "Z_flat"):
		return "topo"
	case strings.HasSuffix(name, "I(V)_flat"),
		strings.HasSuffix(name, "Aux1(V)_flat"),
		strings.HasSuffix(name, "Aux2(V)_flat"):
		return "spec"
	case IsFlatFile(name):
		return "unknown"
	default:
		return ""
	}
}
