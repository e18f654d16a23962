package edtypes

import (
	"slices"
	"strings"
)

// Mark типизированная аннотация над диапазоном инлайн-контента (strong, em, code, link).
type Mark struct {
	Type  string
	Attrs Attrs
}

// Eq сравнивает тип и атрибуты марок.
func (m Mark) Eq(o Mark) bool {
	return m.Type == o.Type && attrsEqual(m.Attrs, o.Attrs)
}

// Attr строковый атрибут марки, например href ссылки.
func (m Mark) Attr(key string) string { return m.Attrs.String(key) }

// WithoutAttr копия марки без указанного атрибута.
func (m Mark) WithoutAttr(key string) Mark {
	attrs := m.Attrs.clone()
	delete(attrs, key)
	if len(attrs) == 0 {
		attrs = nil
	}
	return Mark{Type: m.Type, Attrs: attrs}
}

// HasMark ищет марку типа markType в наборе.
func HasMark(marks []Mark, markType string) bool {
	return slices.ContainsFunc(marks, func(m Mark) bool { return m.Type == markType })
}

// FindMark возвращает марку типа markType из набора.
func FindMark(marks []Mark, markType string) (Mark, bool) {
	i := slices.IndexFunc(marks, func(m Mark) bool { return m.Type == markType })
	if i < 0 {
		return Mark{}, false
	}
	return marks[i], true
}

// AddToSet добавляет марку, вытесняя марку того же типа (у ссылки может быть только один href).
func AddToSet(marks []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	for _, e := range marks {
		if e.Type != m.Type {
			out = append(out, e)
		}
	}
	return sortMarks(append(out, m))
}

// RemoveFromSet удаляет марки типа markType.
func RemoveFromSet(marks []Mark, markType string) []Mark {
	out := make([]Mark, 0, len(marks))
	for _, e := range marks {
		if e.Type != markType {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := slices.Clone(marks)
	slices.SortStableFunc(out, func(a, b Mark) int { return strings.Compare(a.Type, b.Type) })
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		if !slices.ContainsFunc(b, m.Eq) {
			return false
		}
	}
	return true
}
