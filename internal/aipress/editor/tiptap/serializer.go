package tiptap

import (
	"encoding/json"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

// tiptapMarkNames имена марок в формате TipTap.
var tiptapMarkNames = map[string]string{
	edtypes.StrongMark: "bold",
	edtypes.EmMark:     "italic",
}

// Serialize сериализует документ в TipTap JSON.
func Serialize(doc *edtypes.Node) ([]byte, error) {
	return json.Marshal(ToTipTap(doc))
}

// ToTipTap преобразует узел в TipTap ноду.
func ToTipTap(n *edtypes.Node) TipTapNode {
	node := TipTapNode{Type: n.Type, Text: n.Text}
	if len(n.Attrs) > 0 {
		node.Attrs = make(map[string]interface{}, len(n.Attrs))
		for k, v := range n.Attrs {
			node.Attrs[k] = v
		}
	}
	for _, m := range n.Marks {
		mark := TipTapMark{Type: m.Type}
		if name, ok := tiptapMarkNames[m.Type]; ok {
			mark.Type = name
		}
		if len(m.Attrs) > 0 {
			mark.Attrs = map[string]interface{}(m.Attrs)
		}
		node.Marks = append(node.Marks, mark)
	}
	if !n.IsText() && !n.IsLeaf() {
		node.Content = make([]TipTapNode, 0, len(n.Content))
		for _, c := range n.Content {
			node.Content = append(node.Content, ToTipTap(c))
		}
	}
	return node
}
