package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	mu         sync.Mutex
	acquireErr error
	acquired   int
	released   int
	renders    int
}

func (v *fakeView) Acquire() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.acquireErr != nil {
		return v.acquireErr
	}
	v.acquired++
	return nil
}

func (v *fakeView) Render(*State) {
	v.mu.Lock()
	v.renders++
	v.mu.Unlock()
}

func (v *fakeView) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.released++
	return nil
}

func textDoc(s *edtypes.Schema, lines ...string) *edtypes.Node {
	var blocks []*edtypes.Node
	for _, l := range lines {
		blocks = append(blocks, s.MustNode(edtypes.ParagraphType, nil, s.Text(l)))
	}
	return s.MustNode(edtypes.DocType, nil, blocks...)
}

func TestInitialize(t *testing.T) {
	st, err := Initialize(edtypes.DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, 2, st.DocSize())
	assert.Equal(t, Cursor(1), st.Selection)

	_, err = Initialize(&edtypes.Schema{TopNode: "doc", Nodes: map[string]*edtypes.NodeSpec{}})
	assert.ErrorIs(t, err, edtypes.ErrUnknownNodeReference)
}

func TestApplyImmutability(t *testing.T) {
	schema := edtypes.DefaultSchema()
	st, err := NewState(schema, textDoc(schema, "hello"))
	require.NoError(t, err)
	docBefore := st.Doc

	strong, _ := schema.Mark(edtypes.StrongMark, nil)
	trs := []*Transaction{
		st.Tr().InsertText(1, "x"),
		st.Tr().AddMark(1, 6, strong),
		st.Tr().Delete(2, 4),
		st.Tr().SetSelection(Selection{Anchor: 1, Head: 6}),
		st.Tr().ReplaceSelection(TextSlice(schema, "a\nb")),
	}
	for _, tr := range trs {
		next, err := st.Apply(tr)
		require.NoError(t, err)
		assert.NotSame(t, st, next)
		assert.Same(t, docBefore, st.Doc)
		assert.Equal(t, "hello", st.TextContent())
		assert.Equal(t, Cursor(0), st.Selection)
	}
}

func TestApplyRejectsOutOfRange(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{Doc: textDoc(schema, "abc")})
	require.NoError(t, err)
	defer sh.Close()

	before := sh.State()
	tests := []struct {
		name string
		tr   *Transaction
	}{
		{"selection past end", before.Tr().SetSelection(Cursor(99))},
		{"negative selection", before.Tr().SetSelection(Selection{Anchor: -1, Head: 2})},
		{"mark past end", before.Tr().AddMark(0, 99, edtypes.Mark{Type: edtypes.StrongMark})},
		{"insert past end", before.Tr().InsertText(42, "x")},
		{"second step fails", before.Tr().InsertText(1, "ok").Delete(0, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := sh.Apply(tt.tr)
			assert.ErrorIs(t, err, ErrSelectionOutOfRange)
			assert.True(t, IsRejected(err))
			assert.Same(t, before, st)
			assert.Same(t, before, sh.State())
		})
	}
}

func TestApplyRejectsSchemaViolation(t *testing.T) {
	schema := edtypes.DefaultSchema()
	st, err := NewState(schema, textDoc(schema, "abc"))
	require.NoError(t, err)

	tr := st.Tr().ReplaceRange(0, 0, edtypes.Slice{Content: []*edtypes.Node{schema.Text("loose")}})
	_, err = st.Apply(tr)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestInsertWrapsAndSplits(t *testing.T) {
	schema := edtypes.DefaultSchema()
	st, err := NewState(schema, textDoc(schema, "ab"))
	require.NoError(t, err)

	img := schema.MustNode(edtypes.ImageType, edtypes.Attrs{"src": "https://cdn/a.png"})
	next, err := st.Apply(st.Tr().Insert(4, img))
	require.NoError(t, err)
	require.Len(t, next.Doc.Content, 2)
	assert.Equal(t, edtypes.ImageType, next.Doc.Content[1].Content[0].Type)

	hr := schema.MustNode(edtypes.HorizontalRuleType, nil)
	next, err = st.Apply(st.Tr().Insert(2, hr))
	require.NoError(t, err)
	require.Len(t, next.Doc.Content, 3)
	assert.Equal(t, "a", next.Doc.Content[0].TextContent())
	assert.Equal(t, edtypes.HorizontalRuleType, next.Doc.Content[1].Type)
	assert.Equal(t, "b", next.Doc.Content[2].TextContent())
}

func TestReplaceSelectionMovesCursor(t *testing.T) {
	schema := edtypes.DefaultSchema()
	st, err := NewState(schema, textDoc(schema, "abcd"))
	require.NoError(t, err)

	tr := st.Tr().SetSelection(Selection{Anchor: 2, Head: 4}).ReplaceSelection(TextSlice(schema, "XYZ"))
	next, err := st.Apply(tr)
	require.NoError(t, err)
	assert.Equal(t, "aXYZd", next.TextContent())
	assert.Equal(t, Cursor(5), next.Selection)

	// вставка между блоками закрывает открытый край фрагмента
	tr = st.Tr().SetSelection(Cursor(0)).ReplaceSelection(TextSlice(schema, "top"))
	next, err = st.Apply(tr)
	require.NoError(t, err)
	assert.Equal(t, "top\nabcd", next.TextContent())

	// закрытый блок внутри параграфа разбивает его
	heading := schema.MustNode(edtypes.HeadingType, edtypes.Attrs{"level": 2}, schema.Text("T"))
	tr = st.Tr().SetSelection(Cursor(3)).ReplaceSelection(edtypes.Slice{Content: []*edtypes.Node{heading}})
	next, err = st.Apply(tr)
	require.NoError(t, err)
	require.Len(t, next.Doc.Content, 3)
	assert.Equal(t, edtypes.HeadingType, next.Doc.Content[1].Type)
	assert.Equal(t, "ab\nT\ncd", next.TextContent())
	assert.Equal(t, Cursor(8), next.Selection)
}

func TestShellObserversAndHistory(t *testing.T) {
	schema := edtypes.DefaultSchema()
	view := &fakeView{}
	sh, err := Mount(schema, Options{View: view, HistoryLimit: 2})
	require.NoError(t, err)

	var changes []Change
	sh.OnChange(func(c Change) { changes = append(changes, c) })

	for _, text := range []string{"a", "b", "c"} {
		st := sh.State()
		_, err := sh.Apply(st.Tr().InsertText(st.Selection.Head, text))
		require.NoError(t, err)
	}
	require.Len(t, changes, 3)
	assert.Equal(t, "abc", changes[2].Text)
	assert.Equal(t, 3, changes[2].CharCount)

	st, ok := sh.Undo()
	require.True(t, ok)
	assert.Equal(t, "ab", st.TextContent())
	st, ok = sh.Undo()
	require.True(t, ok)
	assert.Equal(t, "a", st.TextContent())
	_, ok = sh.Undo()
	assert.False(t, ok, "history is bounded")

	st, ok = sh.Redo()
	require.True(t, ok)
	assert.Equal(t, "ab", st.TextContent())

	assert.True(t, sh.HandleKeyDown(KeyEvent{Key: "z", Mod: true}))
	assert.Equal(t, "a", sh.State().TextContent())

	require.NoError(t, sh.Close())
	require.NoError(t, sh.Close())
	assert.Equal(t, 1, view.acquired)
	assert.Equal(t, 1, view.released)
	assert.Greater(t, view.renders, 3)
}

func TestEmptyRangeMarkSkipsHistory(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{Doc: textDoc(schema, "abc")})
	require.NoError(t, err)
	defer sh.Close()

	st := sh.State()
	tr := st.Tr().AddMark(2, 2, edtypes.Mark{Type: edtypes.StrongMark})
	assert.False(t, tr.DocChanged())
	next, err := sh.Apply(tr)
	require.NoError(t, err)
	assert.Same(t, st.Doc, next.Doc)
	assert.False(t, sh.CanUndo())

	_, err = sh.Apply(next.Tr().AddMark(1, 3, edtypes.Mark{Type: edtypes.StrongMark}))
	require.NoError(t, err)
	assert.True(t, sh.CanUndo())
}

func TestShellStaleTransaction(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{})
	require.NoError(t, err)
	defer sh.Close()

	st := sh.State()
	_, err = sh.Apply(st.Tr().InsertText(1, "first"))
	require.NoError(t, err)

	_, err = sh.Apply(st.Tr().InsertText(1, "late"))
	assert.ErrorIs(t, err, ErrStaleTransaction)
	assert.Equal(t, "first", sh.State().TextContent())
}

func TestMountAcquireFailure(t *testing.T) {
	view := &fakeView{acquireErr: errors.New("no surface")}
	_, err := Mount(edtypes.DefaultSchema(), Options{View: view})
	assert.Error(t, err)
	assert.Equal(t, 0, view.released)
}

func TestShellCloseWaitsTasks(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{})
	require.NoError(t, err)

	done := make(chan struct{})
	var lateErr error
	require.NoError(t, sh.Go(func(ctx context.Context) {
		<-ctx.Done()
		_, lateErr = sh.Update(func(st *State) (*Transaction, error) {
			return st.Tr().InsertText(1, "late"), nil
		})
		close(done)
	}))

	require.NoError(t, sh.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not awaited")
	}
	assert.ErrorIs(t, lateErr, ErrShellClosed)
	assert.ErrorIs(t, sh.Go(func(context.Context) {}), ErrShellClosed)
}

func TestTrackedPosition(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{Doc: textDoc(schema, "abcd")})
	require.NoError(t, err)
	defer sh.Close()

	tp := sh.Track(3, -1)
	_, err = sh.Update(func(st *State) (*Transaction, error) {
		return st.Tr().InsertText(1, "XY"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, tp.Pos())

	tp.Release()
	_, err = sh.Update(func(st *State) (*Transaction, error) {
		return st.Tr().InsertText(1, "Z"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, tp.Pos())
}

type upperPlugin struct{}

func (upperPlugin) Name() string { return "marker" }

// AppendTransaction помечает весь документ кодом один раз.
func (upperPlugin) AppendTransaction(trs []*Transaction, _, newState *State) *Transaction {
	for _, t := range trs {
		if t.Meta(MetaOrigin) == "marker" {
			return nil
		}
	}
	return newState.Tr().
		AddMark(0, newState.DocSize(), edtypes.Mark{Type: edtypes.CodeMark}).
		SetMeta(MetaOrigin, "marker")
}

func TestAppendTransaction(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{Plugins: []Plugin{upperPlugin{}}})
	require.NoError(t, err)
	defer sh.Close()

	st, err := sh.Update(func(st *State) (*Transaction, error) {
		return st.Tr().InsertText(1, "abc"), nil
	})
	require.NoError(t, err)
	assert.True(t, edtypes.HasMark(st.Doc.Content[0].Content[0].Marks, edtypes.CodeMark))
}

func TestMountRunsAppendTransactionOnLoadedDoc(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{Plugins: []Plugin{upperPlugin{}}, Doc: textDoc(schema, "abc")})
	require.NoError(t, err)
	defer sh.Close()

	st := sh.State()
	assert.True(t, edtypes.HasMark(st.Doc.Content[0].Content[0].Marks, edtypes.CodeMark))
	assert.False(t, sh.CanUndo())
}

func TestHandlePasteHTML(t *testing.T) {
	schema := edtypes.DefaultSchema()
	sh, err := Mount(schema, Options{})
	require.NoError(t, err)
	defer sh.Close()

	ok := sh.HandlePaste(PasteEvent{HTML: `<p>Hi <strong>there</strong><script>x()</script></p><ul><li>one</li></ul>`})
	require.True(t, ok)
	doc := sh.State().Doc
	// хвост исходного параграфа остаётся пустым параграфом после списка
	assert.Equal(t, "Hi there\none\n", doc.PlainText())
	require.Len(t, doc.Content, 3)
	assert.Equal(t, edtypes.BulletListType, doc.Content[1].Type)
	assert.NoError(t, schema.Check(doc))
}

func TestParseHTML(t *testing.T) {
	schema := edtypes.DefaultSchema()
	slice, err := ParseHTML(schema, `<h2>Title</h2><p><a href="https://a.com" title="A">link</a> and <em>em</em><br><img src="https://cdn/x.png" alt="x" data-media-id="abc-1"></p><pre><code>go run</code></pre><ol start="3"><li><p>three</p></li></ol><hr>`)
	require.NoError(t, err)
	require.Len(t, slice.Content, 5)
	assert.Equal(t, 0, slice.OpenStart)
	assert.Equal(t, 0, slice.OpenEnd)

	assert.Equal(t, 2, slice.Content[0].Attrs.Int("level"))

	p := slice.Content[1]
	link, ok := edtypes.FindMark(p.Content[0].Marks, edtypes.LinkMark)
	require.True(t, ok)
	assert.Equal(t, "https://a.com", link.Attr("href"))
	assert.Equal(t, "A", link.Attr("title"))
	last := p.Content[len(p.Content)-1]
	assert.Equal(t, edtypes.ImageType, last.Type)
	assert.Equal(t, "abc-1", last.Attr("mediaId"))

	assert.Equal(t, "go run", slice.Content[2].TextContent())
	assert.Equal(t, 3, slice.Content[3].Attrs.Int("order"))
	assert.Equal(t, edtypes.HorizontalRuleType, slice.Content[4].Type)

	doc := schema.MustNode(edtypes.DocType, nil, slice.Content...)
	assert.NoError(t, schema.Check(doc))
}

func TestActiveMarks(t *testing.T) {
	schema := edtypes.DefaultSchema()
	strong, _ := schema.Mark(edtypes.StrongMark, nil)
	em, _ := schema.Mark(edtypes.EmMark, nil)
	doc := schema.MustNode(edtypes.DocType, nil, schema.MustNode(edtypes.ParagraphType, nil,
		schema.Text("ab", strong), schema.Text("cd", em)))
	st, err := NewState(schema, doc)
	require.NoError(t, err)

	st, err = st.Apply(st.Tr().SetSelection(Selection{Anchor: 2, Head: 4}))
	require.NoError(t, err)
	marks := st.ActiveMarks()
	assert.True(t, edtypes.HasMark(marks, edtypes.StrongMark))
	assert.True(t, edtypes.HasMark(marks, edtypes.EmMark))

	st, err = st.Apply(st.Tr().SetSelection(Cursor(2)))
	require.NoError(t, err)
	assert.Equal(t, []edtypes.Mark{strong}, st.ActiveMarks())
}
