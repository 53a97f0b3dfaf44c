package extractor

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `"Your Kindle Notes For:",,,
"My Book",,,
"by Jane Doe, John Roe",,,
"Free Kindle instant preview:",,,
"https://a.co/d/abc123",,,
----------------------------------------------,,,
,,,
"Annotation Type","Location","Starred?","Annotation"
"Highlight (Yellow)","Location 12",,"The first quote."
"Highlight (Yellow)","Location 40",,"A quote, with a comma."
"Note","Location 41",,"My own note"
"Highlight (Blue)","Location 99",,"He said ""hi""."
`

func newTestExtractor() *Extractor {
	return New(DefaultLayout())
}

func TestExtract_SampleExport(t *testing.T) {
	book, err := newTestExtractor().Extract(strings.NewReader(sampleExport))
	require.NoError(t, err)

	lines := strings.Split(sampleExport, "\n")
	assert.Equal(t, Sanitize(lines[1]), book.Title)
	assert.Equal(t, "My Book", book.Title)
	assert.Equal(t, []string{"Jane Doe", "John Roe"}, book.Authors)
	assert.Equal(t, Sanitize(lines[4]), book.Preview)
	assert.Equal(t, "https://a.co/d/abc123", book.Preview)
	assert.Equal(t, []string{
		"The first quote.",
		"A quote, with a comma.",
		"My own note",
		`He said "hi".`,
	}, book.Quotes)
	assert.True(t, book.CreatedAt.IsZero())
}

func TestExtract_CRLF(t *testing.T) {
	input := strings.ReplaceAll(sampleExport, "\n", "\r\n")

	book, err := newTestExtractor().Extract(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "My Book", book.Title)
	assert.Len(t, book.Quotes, 4)
	assert.Equal(t, "The first quote.", book.Quotes[0])
}

func TestExtract_SingleAuthor(t *testing.T) {
	input := strings.Replace(sampleExport, `"by Jane Doe, John Roe",,,`, `"by Jane Doe",,,`, 1)

	book, err := newTestExtractor().Extract(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe"}, book.Authors)
	assert.Equal(t, "Jane Doe", book.Author())
}

func TestExtract_HeaderOnlyHasNoQuotes(t *testing.T) {
	lines := strings.Split(sampleExport, "\n")[:8]

	book, err := newTestExtractor().Extract(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.NotNil(t, book.Quotes)
	assert.Empty(t, book.Quotes)
	assert.Equal(t, "My Book", book.Title)
}

func TestExtract_MalformedQuoteLine(t *testing.T) {
	input := sampleExport + `"Highlight (Yellow)","Location 120"` + "\n"

	book, err := newTestExtractor().Extract(strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, book)
	assert.ErrorIs(t, err, ErrMalformedExport)
	assert.Contains(t, err.Error(), "line 13")
}

func TestExtract_UnterminatedQuoteField(t *testing.T) {
	input := sampleExport + `"Highlight (Yellow)","Location 120",,"never closed` + "\n"

	_, err := newTestExtractor().Extract(strings.NewReader(input))
	assert.ErrorIs(t, err, ErrMalformedExport)
}

func TestExtract_BlankDataLine(t *testing.T) {
	for name, blank := range map[string]string{"empty": "", "whitespace": "   "} {
		t.Run(name, func(t *testing.T) {
			input := sampleExport + blank + "\n" + `"Highlight (Yellow)","Location 120",,"After the gap."` + "\n"

			book, err := newTestExtractor().Extract(strings.NewReader(input))
			assert.Nil(t, book)
			require.ErrorIs(t, err, ErrMalformedExport)
			assert.Contains(t, err.Error(), "line 13")
		})
	}
}

func TestExtract_OverlongLineIsMalformed(t *testing.T) {
	input := sampleExport + `"Highlight (Yellow)","Location 120",,"` + strings.Repeat("a", maxLineSize) + `"` + "\n"

	_, err := newTestExtractor().Extract(strings.NewReader(input))
	require.ErrorIs(t, err, ErrMalformedExport)
	assert.NotErrorIs(t, err, ErrReadExport)
	assert.Contains(t, err.Error(), "line 13")
}

func TestExtract_TruncatedHeader(t *testing.T) {
	_, err := newTestExtractor().Extract(strings.NewReader("\"Your Kindle Notes For:\",,,\n\"My Book\",,,\n"))
	assert.ErrorIs(t, err, ErrMalformedExport)
}

func TestExtract_EmptyInput(t *testing.T) {
	_, err := newTestExtractor().Extract(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMalformedExport)
}

func TestExtract_MissingTitle(t *testing.T) {
	input := strings.Replace(sampleExport, `"My Book",,,`, `,,,`, 1)

	_, err := newTestExtractor().Extract(strings.NewReader(input))
	require.ErrorIs(t, err, ErrMalformedExport)
	assert.Contains(t, err.Error(), "title")
}

func TestExtract_MissingAuthors(t *testing.T) {
	input := strings.Replace(sampleExport, `"by Jane Doe, John Roe",,,`, `" , ",,,`, 1)

	_, err := newTestExtractor().Extract(strings.NewReader(input))
	require.ErrorIs(t, err, ErrMalformedExport)
	assert.Contains(t, err.Error(), "authors")
}

func TestExtract_ReadErrorAborts(t *testing.T) {
	errBoom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(sampleExport), iotest.ErrReader(errBoom))

	book, err := newTestExtractor().Extract(r)
	require.Error(t, err)
	assert.Nil(t, book)
	assert.ErrorIs(t, err, ErrReadExport)
	assert.ErrorIs(t, err, errBoom)
}

func TestExtractLines_MatchesExtract(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(sampleExport, "\n"), "\n")

	fromLines, err := newTestExtractor().ExtractLines(lines)
	require.NoError(t, err)
	fromReader, err := newTestExtractor().Extract(strings.NewReader(sampleExport))
	require.NoError(t, err)

	assert.Equal(t, fromReader, fromLines)
}

func TestExtract_CustomLayout(t *testing.T) {
	layout := DefaultLayout()
	layout.Fields = map[int]Field{1: FieldTitle, 2: FieldAuthors, 3: FieldPreview}
	layout.DataStartLine = 4
	layout.QuoteColumn = 1
	layout.MinHeaderLines = 3
	lines := []string{"Title", "by A;B", "preview", "x,quoted text"}
	layout.AuthorSeparator = ";"

	book, err := New(layout).ExtractLines(lines)
	require.NoError(t, err)
	assert.Equal(t, "Title", book.Title)
	assert.Equal(t, []string{"A", "B"}, book.Authors)
	assert.Equal(t, []string{"quoted text"}, book.Quotes)
}

func TestField_String(t *testing.T) {
	assert.Equal(t, "title", FieldTitle.String())
	assert.Equal(t, "authors", FieldAuthors.String())
	assert.Equal(t, "preview", FieldPreview.String())
	assert.Equal(t, "unknown", Field(0).String())
}
