package models

// ToolCategory groups tools by the document family they work on.
type ToolCategory string

const (
	CategoryPDF        ToolCategory = "pdf"
	CategoryWord       ToolCategory = "word"
	CategoryExcel      ToolCategory = "excel"
	CategoryPowerPoint ToolCategory = "powerpoint"
	CategoryImage      ToolCategory = "image"
)

// Valid reports whether c is one of the known categories.
func (c ToolCategory) Valid() bool {
	switch c {
	case CategoryPDF, CategoryWord, CategoryExcel, CategoryPowerPoint, CategoryImage:
		return true
	}
	return false
}

// Tool is a named document operation offered by the catalog.
type Tool struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	Category     ToolCategory `json:"category" yaml:"category"`
	InputFormats []string     `json:"inputFormats" yaml:"inputFormats"` // lowercase, dot-prefixed
	OutputFormat string       `json:"outputFormat" yaml:"outputFormat"`
	ActionLabel  string       `json:"actionLabel" yaml:"action"`
	Section      string       `json:"section" yaml:"-"`
}

// Clone returns a copy that does not share the InputFormats backing array.
func (t Tool) Clone() Tool {
	t.InputFormats = append([]string(nil), t.InputFormats...)
	return t
}
