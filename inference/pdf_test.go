package inference

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrey2003/DeepSeek-OCR-CPU/extraction"
)

func fakePagePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("pages/page_%04d.png", i+1)
	}
	return paths
}

func TestSlicePageRange(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		start    int
		end      int
		expected []string
		wantErr  bool
	}{
		{
			name:  "No bounds keeps everything",
			total: 4, start: 0, end: 0,
			expected: fakePagePaths(4),
		},
		{
			name:  "Start and end inclusive",
			total: 10, start: 3, end: 5,
			expected: fakePagePaths(10)[2:5],
		},
		{
			name:  "Only start",
			total: 4, start: 3, end: 0,
			expected: fakePagePaths(4)[2:],
		},
		{
			name:  "Only end",
			total: 4, start: 0, end: 2,
			expected: fakePagePaths(4)[:2],
		},
		{
			name:  "End beyond total is clamped",
			total: 4, start: 2, end: 99,
			expected: fakePagePaths(4)[1:],
		},
		{
			name:  "Start beyond total",
			total: 4, start: 9, end: 0,
			wantErr: true,
		},
		{
			name:  "Inverted range",
			total: 10, start: 6, end: 3,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sliced, err := slicePageRange(fakePagePaths(tc.total), tc.start, tc.end)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sliced)
		})
	}
}

func TestSlicePageRangeProperty(t *testing.T) {
	// startPage=3, endPage=5 over 10 pages yields exactly 3 pages.
	sliced, err := slicePageRange(fakePagePaths(10), 3, 5)
	require.NoError(t, err)
	assert.Len(t, sliced, 3)
	assert.Equal(t, "pages/page_0003.png", sliced[0])
	assert.Equal(t, "pages/page_0005.png", sliced[2])
}

func TestCombineMarkdown(t *testing.T) {
	combined := combineMarkdown([]string{"first page", "", "third page"}, 1)
	expected := "<!-- Page 1 -->\nfirst page\n\n<!-- Page 2 -->\n\n<!-- Page 3 -->\nthird page"
	assert.Equal(t, expected, combined)
}

func TestCombineMarkdownWithStartPage(t *testing.T) {
	combined := combineMarkdown([]string{"a", "b", "c"}, 3)
	assert.Contains(t, combined, "<!-- Page 3 -->\na")
	assert.Contains(t, combined, "<!-- Page 4 -->\nb")
	assert.Contains(t, combined, "<!-- Page 5 -->\nc")
	assert.NotContains(t, combined, "<!-- Page 1 -->")
}

func makePageResult(page int, types ...string) PageResult {
	elements := make([]extraction.Element, len(types))
	for i, typ := range types {
		elements[i] = extraction.Element{
			ID:    fmt.Sprintf("page_%04d_elem_%04d", page, i),
			Type:  typ,
			Page:  page,
			Index: i,
		}
	}
	return PageResult{PageNumber: page, Elements: elements}
}

func TestBuildDocumentStructure(t *testing.T) {
	pageResults := []PageResult{
		makePageResult(1, "title", "paragraph", "paragraph"),
		makePageResult(2, "table"),
		makePageResult(3),
	}

	structure := buildDocumentStructure("/docs/report.pdf", pageResults, DefaultEnhancedOptions())

	meta := structure.DocumentMetadata
	assert.Equal(t, "/docs/report.pdf", meta.SourceFile)
	assert.Equal(t, "report.pdf", meta.Filename)
	assert.Equal(t, 3, meta.NumPages)
	assert.Equal(t, 4, meta.TotalElements)
	assert.Equal(t, map[string]int{"title": 1, "paragraph": 2, "table": 1}, meta.ElementCounts)
	assert.Nil(t, meta.PageRange)

	require.Len(t, structure.Pages, 3)
	assert.Equal(t, 1, structure.Pages[0].Page)
	assert.Equal(t, 3, structure.Pages[0].NumElements)
	assert.Equal(t, []string{"paragraph", "title"}, structure.Pages[0].ElementTypes)
	assert.Equal(t, 0, structure.Pages[2].NumElements)
	assert.Empty(t, structure.Pages[2].ElementTypes)
}

func TestBuildDocumentStructureRecordsPageRange(t *testing.T) {
	opts := DefaultEnhancedOptions()
	opts.StartPage = 3
	opts.EndPage = 5

	pageResults := []PageResult{
		makePageResult(3, "title"),
		makePageResult(4),
		makePageResult(5, "paragraph"),
	}

	structure := buildDocumentStructure("/docs/report.pdf", pageResults, opts)

	require.NotNil(t, structure.DocumentMetadata.PageRange)
	assert.Equal(t, 3, structure.DocumentMetadata.PageRange.Start)
	assert.Equal(t, 5, structure.DocumentMetadata.PageRange.End)

	// Page-range requests relabel pages: the output numbering follows the
	// requested range.
	assert.Equal(t, 3, structure.Pages[0].Page)
	assert.Equal(t, 5, structure.Pages[2].Page)
}

func TestPDFStem(t *testing.T) {
	assert.Equal(t, "report", pdfStem("/tmp/report.pdf"))
	assert.Equal(t, "archive.2024", pdfStem("archive.2024.pdf"))
}
