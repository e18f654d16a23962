package htmlrender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

func TestRender(t *testing.T) {
	s := edtypes.DefaultSchema()
	safe := edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": "https://example.com/a"}}
	unsafe := edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": "javascript:alert(1)"}}

	doc := s.MustNode(edtypes.DocType, nil,
		s.MustNode(edtypes.HeadingType, edtypes.Attrs{"level": 3}, s.Text("Title")),
		s.MustNode(edtypes.ParagraphType, nil,
			s.Text("a "),
			s.Text("bold", edtypes.Mark{Type: edtypes.StrongMark}),
			s.Text(" <tag> "),
			s.Text("site", safe),
			s.Text(" "),
			s.Text("trap", unsafe),
		),
		s.MustNode(edtypes.OrderedListType, edtypes.Attrs{"order": 2},
			s.MustNode(edtypes.ListItemType, nil, s.MustNode(edtypes.ParagraphType, nil, s.Text("two"))),
		),
		s.MustNode(edtypes.CodeBlockType, edtypes.Attrs{"language": "go"}, s.Text("x < y")),
	)

	out, err := Render(doc)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<h3>Title</h3>")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.NotContains(t, html, "<tag>")
	assert.Contains(t, html, "https://example.com/a")
	assert.NotContains(t, html, "javascript")
	assert.Contains(t, html, ">trap</a>")
	assert.Contains(t, html, "start")
	assert.Contains(t, html, "language-go")
}

func TestRenderImage(t *testing.T) {
	s := edtypes.DefaultSchema()
	doc := s.MustNode(edtypes.DocType, nil, s.MustNode(edtypes.ParagraphType, nil,
		s.MustNode(edtypes.ImageType, edtypes.Attrs{"src": "https://cdn.example/a.png", "alt": "cat", "mediaId": "0f0e"}),
		s.MustNode(edtypes.ImageType, edtypes.Attrs{"src": "javascript:x", "alt": "bad"}),
	))

	out, err := Render(doc)
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "https://cdn.example/a.png")
	assert.Contains(t, html, "data-media-id")
	assert.NotContains(t, html, "javascript")
}
