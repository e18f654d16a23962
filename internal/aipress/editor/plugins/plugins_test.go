package plugins

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/markdown"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

type gatedUploader struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan struct{}
	fail  map[string]error
}

func (u *gatedUploader) UploadImage(ctx context.Context, f editor.File) (string, string, error) {
	u.mu.Lock()
	u.calls = append(u.calls, f.Name)
	gate := u.gates[f.Name]
	err := u.fail[f.Name]
	u.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	if err != nil {
		return "", "", err
	}
	return "https://cdn.example/" + f.Name, "id-" + f.Name, nil
}

func (u *gatedUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func imageSrcs(doc *edtypes.Node) []string {
	var out []string
	doc.Descendants(func(n *edtypes.Node, _ int, _ *edtypes.Node) bool {
		if n.Type == edtypes.ImageType {
			out = append(out, n.Attr("src"))
		}
		return true
	})
	return out
}

func paragraphDoc(s *edtypes.Schema, text string) *edtypes.Node {
	var content []*edtypes.Node
	if text != "" {
		content = append(content, s.Text(text))
	}
	return s.MustNode(edtypes.DocType, nil, s.MustNode(edtypes.ParagraphType, nil, content...))
}

func mount(t *testing.T, doc *edtypes.Node, plugins ...editor.Plugin) *editor.Shell {
	t.Helper()
	sh, err := editor.Mount(edtypes.DefaultSchema(), editor.Options{Plugins: plugins, Doc: doc})
	require.NoError(t, err)
	t.Cleanup(func() { sh.Close() })
	return sh
}

func TestImageDropRejectsNonImage(t *testing.T) {
	up := &gatedUploader{}
	img := &ImagePlugin{Uploader: up}
	sh := mount(t, nil, img)
	before := sh.State()

	handled := sh.HandleDrop(editor.DropEvent{Pos: 1, Files: []editor.File{
		{Name: "notes.txt", Type: "text/plain", Data: []byte("hello")},
	}})
	img.Wait()

	assert.False(t, handled)
	assert.Zero(t, up.callCount())
	assert.Same(t, before, sh.State())
	assert.Empty(t, imageSrcs(sh.State().Doc))
}

func TestImageConcurrentUploadsInsertOnce(t *testing.T) {
	up := &gatedUploader{gates: map[string]chan struct{}{
		"a.png": make(chan struct{}),
		"b.png": make(chan struct{}),
	}}
	img := &ImagePlugin{Uploader: up}
	sh := mount(t, nil, img)

	handled := sh.HandleDrop(editor.DropEvent{Pos: 1, Files: []editor.File{
		{Name: "a.png", Type: "image/png", Data: []byte{1}},
		{Name: "b.png", Type: "image/png", Data: []byte{2}},
	}})
	require.True(t, handled)

	// B завершается раньше A
	close(up.gates["b.png"])
	require.Eventually(t, func() bool { return len(imageSrcs(sh.State().Doc)) == 1 }, time.Second, 5*time.Millisecond)
	close(up.gates["a.png"])
	img.Wait()

	doc := sh.State().Doc
	assert.Equal(t, []string{"https://cdn.example/b.png", "https://cdn.example/a.png"}, imageSrcs(doc))
	assert.Equal(t, "id-a.png", doc.Content[0].Content[1].Attr("mediaId"))
	assert.Equal(t, "a", doc.Content[0].Content[1].Attr("alt"))
	assert.Equal(t, 2, up.callCount())
}

func TestImageUploadFailureKeepsSiblings(t *testing.T) {
	up := &gatedUploader{fail: map[string]error{"bad.gif": errors.New("storage down")}}
	var failed []string
	img := &ImagePlugin{Uploader: up, Concurrency: 1, OnError: func(f editor.File, _ error) {
		failed = append(failed, f.Name)
	}}
	sh := mount(t, nil, img)

	require.True(t, sh.HandleDrop(editor.DropEvent{Pos: 1, Files: []editor.File{
		{Name: "bad.gif", Type: "image/gif"},
		{Name: "ok.webp", Type: "image/webp"},
	}}))
	img.Wait()

	assert.Equal(t, []string{"https://cdn.example/ok.webp"}, imageSrcs(sh.State().Doc))
	assert.Equal(t, []string{"bad.gif"}, failed)
}

func TestImagePasteInsertsAtSelection(t *testing.T) {
	schema := edtypes.DefaultSchema()
	up := &gatedUploader{}
	img := &ImagePlugin{Uploader: up}
	sh := mount(t, paragraphDoc(schema, "abcd"), img)

	_, err := sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		return st.Tr().SetSelection(editor.Cursor(3)), nil
	})
	require.NoError(t, err)

	// пока идёт загрузка, перед позицией вставки появляется текст
	up.gates = map[string]chan struct{}{"c.jpg": make(chan struct{})}
	require.True(t, sh.HandlePaste(editor.PasteEvent{Files: []editor.File{{Name: "c.jpg", Type: "image/jpeg"}}}))
	_, err = sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		return st.Tr().InsertText(1, "XY"), nil
	})
	require.NoError(t, err)
	close(up.gates["c.jpg"])
	img.Wait()

	p := sh.State().Doc.Content[0]
	require.Len(t, p.Content, 3)
	assert.Equal(t, "XYab", p.Content[0].Text)
	assert.Equal(t, edtypes.ImageType, p.Content[1].Type)
	assert.Equal(t, "cd", p.Content[2].Text)
}

func TestIsEditorImage(t *testing.T) {
	for typ, want := range map[string]bool{
		"image/jpeg":    true,
		"image/PNG":     true,
		"image/gif":     true,
		"image/webp":    true,
		"image/svg+xml": false,
		"video/mp4":     false,
		"text/plain":    false,
		"":              false,
	} {
		assert.Equal(t, want, IsEditorImage(typ), typ)
	}
}

type recordNavigator struct{ hrefs []string }

func (n *recordNavigator) Navigate(href string) error {
	n.hrefs = append(n.hrefs, href)
	return nil
}

type fixedPrompter struct {
	url string
	ok  bool
}

func (p fixedPrompter) PromptURL(string) (string, bool) { return p.url, p.ok }

func linkDoc(s *edtypes.Schema, href string) *edtypes.Node {
	link := edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": href}}
	return s.MustNode(edtypes.DocType, nil, s.MustNode(edtypes.ParagraphType, nil, s.Text("go "), s.Text("here", link)))
}

func TestLinkClick(t *testing.T) {
	schema := edtypes.DefaultSchema()

	t.Run("safe link navigates", func(t *testing.T) {
		nav := &recordNavigator{}
		sh := mount(t, linkDoc(schema, "https://example.com"), &LinkPlugin{Navigator: nav})
		assert.True(t, sh.HandleClick(editor.ClickEvent{Pos: 6}))
		assert.Equal(t, []string{"https://example.com"}, nav.hrefs)
	})

	t.Run("unsafe link is blocked", func(t *testing.T) {
		nav := &recordNavigator{}
		p := &LinkPlugin{Navigator: nav}
		// без плагинов документ монтируется как есть
		sh := mount(t, linkDoc(schema, "javascript:alert(1)"))
		assert.True(t, p.HandleClick(sh, editor.ClickEvent{Pos: 6}))
		assert.Empty(t, nav.hrefs)
	})

	t.Run("plain text falls back to cursor", func(t *testing.T) {
		nav := &recordNavigator{}
		sh := mount(t, linkDoc(schema, "https://example.com"), &LinkPlugin{Navigator: nav})
		assert.True(t, sh.HandleClick(editor.ClickEvent{Pos: 2}))
		assert.Empty(t, nav.hrefs)
		assert.Equal(t, editor.Cursor(2), sh.State().Selection)
	})
}

func linkHrefs(doc *edtypes.Node) (hrefs []string, bare int) {
	doc.Descendants(func(n *edtypes.Node, _ int, _ *edtypes.Node) bool {
		if m, ok := edtypes.FindMark(n.Marks, edtypes.LinkMark); ok {
			if _, has := m.Attrs["href"]; has {
				hrefs = append(hrefs, m.Attr("href"))
			} else {
				bare++
			}
		}
		return true
	})
	return hrefs, bare
}

func TestLinkSweepStripsUnsafeHref(t *testing.T) {
	hrefs := []string{
		"https://example.com",
		"http://example.com/a?b=c",
		"javascript:alert(1)",
		"JAVASCRIPT:alert(1)",
		"data:text/html,<b>x</b>",
		"ftp://example.com",
		"//example.com",
		"mailto:a@b.com",
		"",
		"https://",
	}
	for _, href := range hrefs {
		t.Run(href, func(t *testing.T) {
			sh := mount(t, nil, &LinkPlugin{})
			st, err := sh.Update(func(st *editor.State) (*editor.Transaction, error) {
				mark := edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": href, "title": "t"}}
				return st.Tr().InsertText(1, "link", mark), nil
			})
			require.NoError(t, err)

			kept, bare := linkHrefs(st.Doc)
			for _, h := range kept {
				assert.True(t, policy.ValidLinkHref(h), h)
			}
			assert.Equal(t, 1, len(kept)+bare)
			assert.Equal(t, "link", st.TextContent())

			m, _ := edtypes.FindMark(st.Doc.Content[0].Content[0].Marks, edtypes.LinkMark)
			assert.Equal(t, "t", m.Attr("title"))
		})
	}
}

func TestLinkSweepOnMount(t *testing.T) {
	schema := edtypes.DefaultSchema()
	doc := schema.MustNode(edtypes.DocType, nil, schema.MustNode(edtypes.ParagraphType, nil,
		schema.Text("bad", edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": "javascript:alert(1)"}}),
		schema.Text(" good", edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": "https://example.com"}}),
	))

	sh := mount(t, doc, &LinkPlugin{})
	hrefs, bare := linkHrefs(sh.State().Doc)
	assert.Equal(t, []string{"https://example.com"}, hrefs)
	assert.Equal(t, 1, bare)
	assert.Equal(t, "bad good", sh.State().TextContent())
	assert.False(t, sh.CanUndo())
}

func TestLinkModK(t *testing.T) {
	schema := edtypes.DefaultSchema()

	sh := mount(t, paragraphDoc(schema, "abcd"), &LinkPlugin{Prompter: fixedPrompter{url: "https://x.io", ok: true}})
	_, err := sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		return st.Tr().SetSelection(editor.Selection{Anchor: 2, Head: 4}), nil
	})
	require.NoError(t, err)

	require.True(t, sh.HandleKeyDown(editor.KeyEvent{Key: "k", Mod: true}))
	p := sh.State().Doc.Content[0]
	require.Len(t, p.Content, 3)
	m, ok := edtypes.FindMark(p.Content[1].Marks, edtypes.LinkMark)
	require.True(t, ok)
	assert.Equal(t, "https://x.io", m.Attr("href"))
	assert.Equal(t, "bc", p.Content[1].Text)

	unsafe := mount(t, paragraphDoc(schema, "abcd"), &LinkPlugin{Prompter: fixedPrompter{url: "javascript:x", ok: true}})
	before := unsafe.State()
	assert.True(t, unsafe.HandleKeyDown(editor.KeyEvent{Key: "k", Mod: true}))
	assert.Same(t, before, unsafe.State())

	assert.False(t, unsafe.HandleKeyDown(editor.KeyEvent{Key: "b", Mod: true}))
}

func TestLinkTransactionInsertsURLAtCursor(t *testing.T) {
	schema := edtypes.DefaultSchema()
	st, err := editor.NewState(schema, paragraphDoc(schema, "ab"))
	require.NoError(t, err)
	st, err = st.Apply(st.Tr().SetSelection(editor.Cursor(2)))
	require.NoError(t, err)

	next, err := st.Apply(LinkTransaction(st, "https://x.io"))
	require.NoError(t, err)
	assert.Equal(t, "ahttps://x.iob", next.TextContent())
	assert.Equal(t, editor.Cursor(14), next.Selection)
}

func TestMarkdownPaste(t *testing.T) {
	sh := mount(t, nil, &MarkdownPlugin{})

	require.True(t, sh.HandlePaste(editor.PasteEvent{Text: "# Title\n\nsome **bold**"}))
	doc := sh.State().Doc
	assert.Equal(t, "\nTitle\nsome bold", doc.PlainText())
	require.Len(t, doc.Content, 3)
	assert.Equal(t, edtypes.HeadingType, doc.Content[1].Type)
	assert.True(t, edtypes.HasMark(doc.Content[2].Content[1].Marks, edtypes.StrongMark))
}

func TestMarkdownPasteLeavesHTMLToShell(t *testing.T) {
	p := &MarkdownPlugin{}
	sh := mount(t, nil)
	assert.False(t, p.HandlePaste(sh, editor.PasteEvent{Text: "x", HTML: "<p>x</p>"}))
	assert.False(t, p.HandlePaste(sh, editor.PasteEvent{}))
}

func TestMarkdownDrop(t *testing.T) {
	schema := edtypes.DefaultSchema()
	var got []markdown.FrontMatter
	sh := mount(t, paragraphDoc(schema, "ab"), &MarkdownPlugin{OnFrontMatter: func(fm markdown.FrontMatter) {
		got = append(got, fm)
	}})

	assert.False(t, sh.HandleDrop(editor.DropEvent{Pos: 2, Files: []editor.File{{Name: "a.txt", Type: "text/plain"}}}))

	require.True(t, sh.HandleDrop(editor.DropEvent{Pos: 2, Files: []editor.File{{
		Name: "Post.MD",
		Data: []byte("---\ntitle: Hello\n---\nx *y*\n"),
	}}}))
	assert.Equal(t, "ax yb", sh.State().TextContent())
	assert.Equal(t, []markdown.FrontMatter{{Title: "Hello"}}, got)
}

func TestDropImageWithMarkdownFile(t *testing.T) {
	schema := edtypes.DefaultSchema()
	up := &gatedUploader{}
	img := &ImagePlugin{Uploader: up}
	sh := mount(t, paragraphDoc(schema, "ab"), img, &MarkdownPlugin{})

	handled := sh.HandleDrop(editor.DropEvent{Pos: 2, Files: []editor.File{
		{Name: "cover.png", Type: "image/png", Data: []byte{1}},
		{Name: "notes.md", Data: []byte("x *y*\n")},
	}})
	img.Wait()

	assert.True(t, handled)
	assert.Equal(t, "ax yb", sh.State().TextContent())
	assert.Equal(t, []string{"https://cdn.example/cover.png"}, imageSrcs(sh.State().Doc))
	assert.Equal(t, 1, up.callCount())
}
