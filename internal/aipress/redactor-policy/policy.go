// Определяет политики безопасности для HTML-контента, попадающего в редактор из буфера обмена, Markdown и экспорта.
// Политики ограничивают набор тегов и атрибутов теми, что представимы в схеме документа, и не пропускают небезопасные ссылки.
//
// Основные возможности:
//   - UgcPolicy для вставки HTML из буфера обмена и рендера публикаций.
//   - StripTagsPolicy для удаления сырого HTML из Markdown.
//   - Проверка протокола ссылок (только http и https).
//   - Снятие href с небезопасных ссылок в готовом HTML.
package policy

import (
	"container/list"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/microcosm-cc/bluemonday"
)

var StripTagsPolicy *bluemonday.Policy = bluemonday.StrictPolicy()
var UgcPolicy *bluemonday.Policy = bluemonday.NewPolicy()

func init() {
	UgcPolicy.AllowElements("p", "br", "hr", "blockquote", "pre", "code", "strong", "b", "em", "i", "ul", "ol", "li")
	UgcPolicy.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")

	UgcPolicy.AllowStandardURLs()
	UgcPolicy.AllowURLSchemes("http", "https")
	UgcPolicy.AllowAttrs("href", "title").OnElements("a")
	UgcPolicy.AllowAttrs("src", "alt", "title").OnElements("img")
	UgcPolicy.AllowAttrs("data-media-id").Matching(regexp.MustCompile(`^[0-9a-fA-F-]{1,36}$`)).OnElements("img")
	UgcPolicy.AllowAttrs("start").Matching(regexp.MustCompile(`^\d+$`)).OnElements("ol")
	UgcPolicy.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+-]+$`)).OnElements("code")
}

// ValidLinkHref сообщает, что ссылка абсолютная и использует протокол http или https.
func ValidLinkHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// StripUnsafeLinks снимает href со всех ссылок, не прошедших ValidLinkHref.
func StripUnsafeLinks(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	queue := list.New()
	queue.PushBack(doc)

	for queue.Len() > 0 {
		element := queue.Front()
		queue.Remove(element)
		node := element.Value.(*html.Node)

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.Data == "a" {
				processLinkNode(child)
			}
			if child.FirstChild != nil {
				queue.PushBack(child)
			}
		}
	}

	var result strings.Builder
	html.Render(&result, getBody(doc))

	return innerHTML(result.String())
}

func processLinkNode(node *html.Node) {
	attrs := node.Attr[:0]
	for _, attr := range node.Attr {
		if attr.Key == "href" && !ValidLinkHref(attr.Val) {
			continue
		}
		attrs = append(attrs, attr)
	}
	node.Attr = attrs
}

func getBody(doc *html.Node) *html.Node {
	var body *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if body == nil {
		return doc
	}
	return body
}

func innerHTML(rendered string) string {
	rendered = strings.TrimPrefix(rendered, "<body>")
	return strings.TrimSuffix(rendered, "</body>")
}
