package edtypes

import (
	"errors"
	"fmt"
	"slices"
)

// Имена узлов и марок схемы по умолчанию.
const (
	DocType            = "doc"
	ParagraphType      = "paragraph"
	HeadingType        = "heading"
	BlockquoteType     = "blockquote"
	BulletListType     = "bulletList"
	OrderedListType    = "orderedList"
	ListItemType       = "listItem"
	CodeBlockType      = "codeBlock"
	HorizontalRuleType = "horizontalRule"
	TextType           = "text"
	ImageType          = "image"
	HardBreakType      = "hardBreak"

	StrongMark = "strong"
	EmMark     = "em"
	CodeMark   = "code"
	LinkMark   = "link"

	GroupBlock  = "block"
	GroupInline = "inline"
)

var (
	ErrUnknownNodeReference = errors.New("unknown node reference")
	ErrUnknownNodeType      = errors.New("unknown node type")
	ErrUnknownMarkType      = errors.New("unknown mark type")
	ErrSchemaViolation      = errors.New("schema violation")
)

// NodeSpec описание типа узла.
type NodeSpec struct {
	// Допустимые дочерние узлы: имена узлов или групп.
	Content   []string
	Group     string
	Inline    bool
	Leaf      bool
	Textblock bool
	// Разрешены ли марки на инлайн-содержимом.
	Marks bool
	// Атрибуты по умолчанию.
	Attrs Attrs

	name string
}

// Name имя типа узла.
func (s *NodeSpec) Name() string { return s.name }

// MarkSpec описание типа марки.
type MarkSpec struct {
	Attrs Attrs
}

// Schema допустимые типы узлов, марок и их вложенность.
type Schema struct {
	Nodes   map[string]*NodeSpec
	Marks   map[string]*MarkSpec
	TopNode string
}

// NewSchema проверяет структуру схемы. Ссылка в Content на несуществующий узел или группу
// делает схему некорректной.
func NewSchema(nodes map[string]*NodeSpec, marks map[string]*MarkSpec, topNode string) (*Schema, error) {
	if topNode == "" {
		topNode = DocType
	}
	s := &Schema{Nodes: make(map[string]*NodeSpec, len(nodes)), Marks: marks, TopNode: topNode}
	for name, spec := range nodes {
		if spec == nil {
			return nil, fmt.Errorf("%w: node %q has no spec", ErrUnknownNodeReference, name)
		}
		cp := *spec
		cp.name = name
		s.Nodes[name] = &cp
	}
	if s.Marks == nil {
		s.Marks = map[string]*MarkSpec{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate проверяет, что все ссылки схемы разрешаются.
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", ErrUnknownNodeReference)
	}
	if _, ok := s.Nodes[s.TopNode]; !ok {
		return fmt.Errorf("%w: top node %q", ErrUnknownNodeReference, s.TopNode)
	}
	if _, ok := s.Nodes[TextType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNodeReference, TextType)
	}
	groups := map[string]bool{}
	for _, spec := range s.Nodes {
		if spec.Group != "" {
			groups[spec.Group] = true
		}
	}
	for name, spec := range s.Nodes {
		if spec.Leaf && len(spec.Content) > 0 {
			return fmt.Errorf("%w: leaf node %q declares content", ErrUnknownNodeReference, name)
		}
		for _, ref := range spec.Content {
			if _, ok := s.Nodes[ref]; !ok && !groups[ref] {
				return fmt.Errorf("%w: %q in content of %q", ErrUnknownNodeReference, ref, name)
			}
		}
	}
	return nil
}

// Allows сообщает, может ли узел child лежать внутри узла типа parent.
func (s *Schema) Allows(parent *NodeSpec, child *NodeSpec) bool {
	return slices.Contains(parent.Content, child.name) || (child.Group != "" && slices.Contains(parent.Content, child.Group))
}

// Node создаёт узел типа typ. Атрибуты по умолчанию дополняются переданными.
func (s *Schema) Node(typ string, attrs Attrs, content ...*Node) (*Node, error) {
	spec, ok := s.Nodes[typ]
	if !ok || typ == TextType {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, typ)
	}
	merged := spec.Attrs.clone()
	for k, v := range attrs {
		if merged == nil {
			merged = Attrs{}
		}
		merged[k] = v
	}
	if spec.Leaf {
		content = nil
	}
	return newNode(spec, typ, merged, normalizeInline(content), nil, ""), nil
}

// MustNode как Node, но паникует на неизвестном типе. Для фикстур и констант.
func (s *Schema) MustNode(typ string, attrs Attrs, content ...*Node) *Node {
	n, err := s.Node(typ, attrs, content...)
	if err != nil {
		panic(err)
	}
	return n
}

// Text создаёт текстовый узел с марками.
func (s *Schema) Text(text string, marks ...Mark) *Node {
	return newNode(s.Nodes[TextType], TextType, nil, nil, sortMarks(marks), text)
}

// Mark создаёт марку, проверяя её тип.
func (s *Schema) Mark(typ string, attrs Attrs) (Mark, error) {
	spec, ok := s.Marks[typ]
	if !ok {
		return Mark{}, fmt.Errorf("%w: %q", ErrUnknownMarkType, typ)
	}
	merged := spec.Attrs.clone()
	for k, v := range attrs {
		if merged == nil {
			merged = Attrs{}
		}
		merged[k] = v
	}
	return Mark{Type: typ, Attrs: merged}, nil
}

// EmptyDoc пустой документ из одного пустого параграфа.
func (s *Schema) EmptyDoc() *Node {
	var content []*Node
	if p, ok := s.Nodes[ParagraphType]; ok && s.Allows(s.Nodes[s.TopNode], p) {
		content = append(content, newNode(p, ParagraphType, nil, nil, nil, ""))
	}
	return newNode(s.Nodes[s.TopNode], s.TopNode, nil, content, nil, "")
}

// Check проверяет дерево на соответствие схеме.
func (s *Schema) Check(doc *Node) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrSchemaViolation)
	}
	if doc.Type != s.TopNode {
		return fmt.Errorf("%w: root is %q, want %q", ErrSchemaViolation, doc.Type, s.TopNode)
	}
	return s.checkNode(doc)
}

func (s *Schema) checkNode(n *Node) error {
	spec, ok := s.Nodes[n.Type]
	if !ok {
		return fmt.Errorf("%w: %w %q", ErrSchemaViolation, ErrUnknownNodeType, n.Type)
	}
	if n.IsText() {
		for _, m := range n.Marks {
			if _, ok := s.Marks[m.Type]; !ok {
				return fmt.Errorf("%w: %w %q", ErrSchemaViolation, ErrUnknownMarkType, m.Type)
			}
		}
		return nil
	}
	if n.Type == HeadingType {
		if lvl := n.Attrs.Int("level"); lvl < 1 || lvl > 6 {
			return fmt.Errorf("%w: heading level %d", ErrSchemaViolation, lvl)
		}
	}
	for _, child := range n.Content {
		childSpec, ok := s.Nodes[child.Type]
		if !ok {
			return fmt.Errorf("%w: %w %q", ErrSchemaViolation, ErrUnknownNodeType, child.Type)
		}
		if !s.Allows(spec, childSpec) {
			return fmt.Errorf("%w: %q is not allowed in %q", ErrSchemaViolation, child.Type, n.Type)
		}
		if len(child.Marks) > 0 && !spec.Marks {
			return fmt.Errorf("%w: marks are not allowed in %q", ErrSchemaViolation, n.Type)
		}
		if err := s.checkNode(child); err != nil {
			return err
		}
	}
	return nil
}

// DefaultSchema схема редактора публикаций.
func DefaultSchema() *Schema {
	s, err := NewSchema(map[string]*NodeSpec{
		DocType:            {Content: []string{GroupBlock}},
		ParagraphType:      {Content: []string{GroupInline}, Group: GroupBlock, Textblock: true, Marks: true},
		HeadingType:        {Content: []string{GroupInline}, Group: GroupBlock, Textblock: true, Marks: true, Attrs: Attrs{"level": 1}},
		BlockquoteType:     {Content: []string{GroupBlock}, Group: GroupBlock},
		BulletListType:     {Content: []string{ListItemType}, Group: GroupBlock},
		OrderedListType:    {Content: []string{ListItemType}, Group: GroupBlock, Attrs: Attrs{"order": 1}},
		ListItemType:       {Content: []string{GroupBlock}},
		CodeBlockType:      {Content: []string{TextType}, Group: GroupBlock, Textblock: true},
		HorizontalRuleType: {Group: GroupBlock, Leaf: true},
		TextType:           {Group: GroupInline, Inline: true},
		ImageType:          {Group: GroupInline, Inline: true, Leaf: true},
		HardBreakType:      {Group: GroupInline, Inline: true, Leaf: true},
	}, map[string]*MarkSpec{
		StrongMark: {},
		EmMark:     {},
		CodeMark:   {},
		LinkMark:   {},
	}, DocType)
	if err != nil {
		panic(err)
	}
	return s
}
