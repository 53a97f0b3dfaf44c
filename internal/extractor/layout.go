package extractor

// Field is a BookRecord field filled from a fixed header line.
type Field int

const (
	FieldTitle Field = iota + 1
	FieldAuthors
	FieldPreview
)

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldAuthors:
		return "authors"
	case FieldPreview:
		return "preview"
	default:
		return "unknown"
	}
}

// Layout describes where an exporter version puts each piece of data.
// Line numbers are 1-based.
type Layout struct {
	// Fields maps a header line number to the field it holds.
	// Header lines not listed are export metadata and are ignored.
	Fields map[int]Field
	// DataStartLine is the first line holding a highlight row.
	DataStartLine int
	// QuoteColumn is the zero-based CSV column holding the highlighted text.
	QuoteColumn int
	// MinHeaderLines is the fewest lines a file may have and still be an export.
	MinHeaderLines int
	// AuthorSeparator splits the authors line into names.
	AuthorSeparator string
}

// DefaultLayout is the layout of the Kindle "export notebook" CSV.
func DefaultLayout() Layout {
	return Layout{
		Fields: map[int]Field{
			2: FieldTitle,
			3: FieldAuthors,
			5: FieldPreview,
		},
		DataStartLine:   9,
		QuoteColumn:     3,
		MinHeaderLines:  5,
		AuthorSeparator: ",",
	}
}
