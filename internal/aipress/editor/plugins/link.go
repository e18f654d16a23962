package plugins

import (
	"log/slog"

	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

// Navigator открывает ссылку во внешнем окне.
type Navigator interface {
	Navigate(href string) error
}

// Prompter запрашивает у пользователя адрес ссылки. ok false означает отмену.
type Prompter interface {
	PromptURL(current string) (url string, ok bool)
}

// LinkPlugin переход по ссылкам и их безопасность. После каждого изменения документа и при его
// загрузке у ссылок с протоколом, отличным от http и https, удаляется href.
type LinkPlugin struct {
	Navigator Navigator
	Prompter  Prompter
}

func (p *LinkPlugin) Name() string { return "link" }

// HandleClick открывает ссылку под курсором. Небезопасная ссылка блокируется, клик поглощается.
func (p *LinkPlugin) HandleClick(sh *editor.Shell, ev editor.ClickEvent) bool {
	link, ok := linkAt(sh.State().Doc, ev.Pos)
	if !ok {
		return false
	}
	href, hasHref := link.Attrs["href"].(string)
	if !hasHref {
		return false
	}
	if !policy.ValidLinkHref(href) {
		slog.Warn("Blocked unsafe link navigation", "href", href)
		return true
	}
	if p.Navigator == nil {
		return false
	}
	if err := p.Navigator.Navigate(href); err != nil {
		slog.Error("Navigate link", "href", href, "err", err)
	}
	return true
}

// HandleKeyDown Mod-k ставит ссылку на выделение, пустой адрес снимает её.
func (p *LinkPlugin) HandleKeyDown(sh *editor.Shell, ev editor.KeyEvent) bool {
	if ev.String() != "Mod-k" || p.Prompter == nil {
		return false
	}
	st := sh.State()
	current := ""
	if m, ok := edtypes.FindMark(st.ActiveMarks(), edtypes.LinkMark); ok {
		current = m.Attr("href")
	}
	href, ok := p.Prompter.PromptURL(current)
	if !ok {
		return true
	}
	if href != "" && !policy.ValidLinkHref(href) {
		slog.Warn("Reject unsafe link", "href", href)
		return true
	}

	_, err := sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		return LinkTransaction(st, href), nil
	})
	if err != nil {
		slog.Warn("Set link fail", "href", href, "err", err)
	}
	return true
}

// LinkTransaction ставит ссылку href на выделение. При пустом выделении вставляется сам адрес
// со ссылкой, пустой href снимает ссылку с выделения.
func LinkTransaction(st *editor.State, href string) *editor.Transaction {
	sel := st.Selection
	tr := st.Tr().SetMeta(editor.MetaOrigin, "link")
	if href == "" {
		return tr.RemoveMark(sel.From(), sel.To(), edtypes.LinkMark)
	}
	mark := edtypes.Mark{Type: edtypes.LinkMark, Attrs: edtypes.Attrs{"href": href}}
	if sel.Empty() {
		tr.InsertText(sel.From(), href, edtypes.AddToSet(st.ActiveMarks(), mark)...)
		return tr.SetSelection(editor.Cursor(tr.Map(sel.From(), 1)))
	}
	return tr.AddMark(sel.From(), sel.To(), mark)
}

// AppendTransaction проход по всему документу после правки или загрузки: ссылки с небезопасным href
// теряют атрибут href, текст и остальные атрибуты сохраняются.
func (p *LinkPlugin) AppendTransaction(trs []*editor.Transaction, _, newState *editor.State) *editor.Transaction {
	changed := false
	for _, tr := range trs {
		changed = changed || tr.DocReplaced()
	}
	if !changed {
		return nil
	}

	var tr *editor.Transaction
	newState.Doc.Descendants(func(node *edtypes.Node, pos int, _ *edtypes.Node) bool {
		if !node.IsText() {
			return true
		}
		link, ok := edtypes.FindMark(node.Marks, edtypes.LinkMark)
		if !ok || !unsafeHref(link) {
			return true
		}
		if tr == nil {
			tr = newState.Tr().SetMeta(editor.MetaOrigin, p.Name())
		}
		slog.Info("Strip unsafe link href", "href", link.Attr("href"), "pos", pos)
		tr.AddMark(pos, pos+node.Size(), link.WithoutAttr("href"))
		return true
	})
	return tr
}

func unsafeHref(link edtypes.Mark) bool {
	raw, ok := link.Attrs["href"]
	if !ok {
		return false
	}
	href, _ := raw.(string)
	return !policy.ValidLinkHref(href)
}

// linkAt марка ссылки на тексте под позицией: в тексте, перед ним или сразу после.
func linkAt(doc *edtypes.Node, pos int) (edtypes.Mark, bool) {
	r, err := doc.Resolve(pos)
	if err != nil {
		return edtypes.Mark{}, false
	}
	if m, ok := edtypes.FindMark(r.Marks(), edtypes.LinkMark); ok {
		return m, true
	}
	if after := r.NodeAfter(); after != nil {
		return edtypes.FindMark(after.Marks, edtypes.LinkMark)
	}
	return edtypes.Mark{}, false
}
