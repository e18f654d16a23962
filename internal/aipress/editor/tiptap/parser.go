package tiptap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

var ErrNotDocument = errors.New("root node is not a document")

// markAliases имена марок TipTap, отличающиеся от имён схемы.
var markAliases = map[string]string{
	"bold":   edtypes.StrongMark,
	"italic": edtypes.EmMark,
}

// ParseJSON парсит JSON контент редактора в дерево документа схемы schema.
// Неизвестные узлы и марки пропускаются с предупреждением, итоговое дерево проверяется схемой.
func ParseJSON(r io.Reader, schema *edtypes.Schema) (*edtypes.Node, error) {
	var root TipTapNode
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}
	return FromTipTap(schema, root)
}

// FromTipTap строит документ из уже декодированного корневого узла.
func FromTipTap(schema *edtypes.Schema, root TipTapNode) (*edtypes.Node, error) {
	if root.Type != schema.TopNode {
		return nil, fmt.Errorf("%w: %q", ErrNotDocument, root.Type)
	}
	doc := parseNode(schema, root)
	if err := schema.Check(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseFragment парсит список узлов без корня, например содержимое буфера обмена.
func ParseFragment(schema *edtypes.Schema, nodes []TipTapNode) []*edtypes.Node {
	out := make([]*edtypes.Node, 0, len(nodes))
	for _, n := range nodes {
		if node := parseNode(schema, n); node != nil {
			out = append(out, node)
		}
	}
	return out
}

// parseNode парсит отдельную ноду TipTap и возвращает узел схемы.
func parseNode(schema *edtypes.Schema, node TipTapNode) *edtypes.Node {
	if node.Type == edtypes.TextType {
		if node.Text == "" {
			return nil
		}
		return schema.Text(node.Text, parseMarks(schema, node.Marks)...)
	}
	if _, ok := schema.Nodes[node.Type]; !ok {
		slog.Warn("Unknown node type", "type", node.Type)
		return nil
	}
	children := ParseFragment(schema, node.Content)
	n, err := schema.Node(node.Type, parseAttrs(node.Attrs), children...)
	if err != nil {
		slog.Warn("Skip node", "type", node.Type, "err", err)
		return nil
	}
	return n
}

// parseMarks применяет форматирование (marks) к текстовому узлу.
func parseMarks(schema *edtypes.Schema, marks []TipTapMark) []edtypes.Mark {
	var out []edtypes.Mark
	for _, mark := range marks {
		typ := mark.Type
		if alias, ok := markAliases[typ]; ok {
			typ = alias
		}
		m, err := schema.Mark(typ, parseAttrs(mark.Attrs))
		if err != nil {
			slog.Debug("Unknown mark type", "type", mark.Type)
			continue
		}
		out = edtypes.AddToSet(out, m)
	}
	return out
}

// parseAttrs убирает пустые атрибуты и приводит целые числа из JSON к int.
func parseAttrs(attrs map[string]interface{}) edtypes.Attrs {
	if len(attrs) == 0 {
		return nil
	}
	out := make(edtypes.Attrs, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case nil:
			continue
		case float64:
			if val == math.Trunc(val) {
				out[k] = int(val)
				continue
			}
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
