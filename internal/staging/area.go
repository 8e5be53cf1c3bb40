// Package staging keeps the ordered list of files waiting to be processed by a tool.
package staging

import (
	"errors"
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ErrInvalidReorder is returned when a new order is not a permutation of the staged files.
var ErrInvalidReorder = errors.New("new order is not a permutation of the staged files")

// Office formats are missing from Go's builtin MIME table and from many
// system tables.
var officeTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

func init() {
	for ext, typ := range officeTypes {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// RejectReason explains why a candidate file was not staged.
type RejectReason string

const (
	ReasonUnsupportedFormat RejectReason = "unsupported_format"
	ReasonTooManyFiles      RejectReason = "too_many_files"
	ReasonSizeLimit         RejectReason = "size_limit_exceeded"
)

// Limits caps a staging area. Zero values disable the corresponding check.
type Limits struct {
	MaxFiles      int
	MaxTotalBytes int64
}

// Rejection pairs a refused candidate with the reason it was refused.
type Rejection struct {
	File   models.RawFile `json:"file"`
	Reason RejectReason   `json:"reason"`
}

// Result is the outcome of one Stage call.
type Result struct {
	Accepted []models.StagedFile `json:"accepted"`
	Rejected []Rejection         `json:"rejected"`
}

// Area is an ordered set of staged files. It is not safe for concurrent use;
// its owner serializes access.
type Area struct {
	files  []models.StagedFile
	limits Limits
	now    func() time.Time
}

// NewArea creates an empty staging area.
func NewArea(limits Limits) *Area {
	return &Area{limits: limits, now: time.Now}
}

// Stage appends every candidate whose extension is in accepted, in arrival order.
// Extension matching is case-insensitive; file content is never inspected.
func (a *Area) Stage(candidates []models.RawFile, accepted []string) Result {
	res := Result{
		Accepted: make([]models.StagedFile, 0, len(candidates)),
		Rejected: make([]Rejection, 0),
	}
	total := a.TotalBytes()

	for _, f := range candidates {
		if !MatchesExtension(f.Name, accepted) {
			res.Rejected = append(res.Rejected, Rejection{File: f, Reason: ReasonUnsupportedFormat})
			continue
		}
		if a.limits.MaxFiles > 0 && len(a.files) >= a.limits.MaxFiles {
			res.Rejected = append(res.Rejected, Rejection{File: f, Reason: ReasonTooManyFiles})
			continue
		}
		if a.limits.MaxTotalBytes > 0 && total+f.Size > a.limits.MaxTotalBytes {
			res.Rejected = append(res.Rejected, Rejection{File: f, Reason: ReasonSizeLimit})
			continue
		}

		staged := a.newStagedFile(f)
		a.files = append(a.files, staged)
		total += f.Size
		res.Accepted = append(res.Accepted, staged)
	}

	return res
}

func (a *Area) newStagedFile(f models.RawFile) models.StagedFile {
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(Extension(f.Name))
	}
	size := f.Size
	if size < 0 {
		size = 0
	}
	return models.StagedFile{
		ID:          uuid.New().String(),
		Name:        f.Name,
		Size:        size,
		DisplaySize: humanize.IBytes(uint64(size)),
		MimeType:    mimeType,
		Kind:        KindOf(mimeType),
		Handle:      f.Handle,
		AddedAt:     a.now(),
	}
}

// Remove drops the staged file with the given id. Missing ids are not an error.
func (a *Area) Remove(id string) bool {
	i := a.indexOf(id)
	if i < 0 {
		return false
	}
	a.files = slices.Delete(a.files, i, i+1)
	return true
}

// Reorder replaces the staged sequence with newOrder, which must hold exactly
// the currently staged files. On error the sequence is left unchanged.
func (a *Area) Reorder(newOrder []models.StagedFile) error {
	if len(newOrder) != len(a.files) {
		return ErrInvalidReorder
	}

	current := make(map[string]models.StagedFile, len(a.files))
	for _, f := range a.files {
		current[f.ID] = f
	}

	next := make([]models.StagedFile, 0, len(newOrder))
	for _, f := range newOrder {
		staged, ok := current[f.ID]
		if !ok {
			return ErrInvalidReorder
		}
		delete(current, f.ID)
		next = append(next, staged)
	}

	a.files = next
	return nil
}

// Find returns the staged file with the given id.
func (a *Area) Find(id string) (models.StagedFile, bool) {
	i := a.indexOf(id)
	if i < 0 {
		return models.StagedFile{}, false
	}
	return a.files[i], true
}

// Files returns a copy of the staged sequence.
func (a *Area) Files() []models.StagedFile {
	return slices.Clone(a.files)
}

// Len returns the number of staged files.
func (a *Area) Len() int {
	return len(a.files)
}

// TotalBytes returns the cumulative size of the staged files.
func (a *Area) TotalBytes() int64 {
	var total int64
	for _, f := range a.files {
		total += f.Size
	}
	return total
}

// Clear empties the area and returns what was staged.
func (a *Area) Clear() []models.StagedFile {
	removed := a.files
	a.files = nil
	return removed
}

func (a *Area) indexOf(id string) int {
	return slices.IndexFunc(a.files, func(f models.StagedFile) bool { return f.ID == id })
}

// Extension returns the lowercase extension of name including the dot, or "".
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// MatchesExtension reports whether name ends in one of the accepted extensions.
func MatchesExtension(name string, accepted []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range accepted {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// KindOf maps a MIME type onto a display family.
func KindOf(mimeType string) models.FileKind {
	t := strings.ToLower(mimeType)
	switch {
	case strings.Contains(t, "pdf"):
		return models.KindPDF
	case strings.Contains(t, "sheet"), strings.Contains(t, "excel"):
		return models.KindExcel
	case strings.Contains(t, "presentation"), strings.Contains(t, "powerpoint"):
		return models.KindPowerPoint
	case strings.Contains(t, "word"), strings.Contains(t, "document"):
		return models.KindWord
	case strings.HasPrefix(t, "image/"):
		return models.KindImage
	default:
		return models.KindOther
	}
}
