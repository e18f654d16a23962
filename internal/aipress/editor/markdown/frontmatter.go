package markdown

import (
	"bytes"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FrontMatter метаданные поста в заголовке .md файла.
type FrontMatter struct {
	Title    string   `yaml:"title" json:"title,omitempty"`
	Subtitle string   `yaml:"subtitle" json:"subtitle,omitempty"`
	Tags     []string `yaml:"tags" json:"tags,omitempty"`
}

// закрывающий "---" должен стоять с начала строки, внутри блочных скаляров YAML он всегда с отступом
var frontMatterRe = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n`)

// SplitFrontMatter отделяет YAML-заголовок от тела. Без заголовка возвращается исходный текст целиком.
func SplitFrontMatter(src []byte) (FrontMatter, []byte, error) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	loc := frontMatterRe.FindSubmatchIndex(src)
	if loc == nil {
		return FrontMatter{}, src, nil
	}

	var fm FrontMatter
	if err := yaml.Unmarshal(src[loc[2]:loc[3]], &fm); err != nil {
		return FrontMatter{}, nil, fmt.Errorf("parse front matter: %w", err)
	}
	return fm, src[loc[1]:], nil
}
