// Генерация документации об ошибках API в формате Markdown.
// Строит таблицу по каталогу apierrors: коды ошибок, HTTP-коды, сообщения и переводы на русский язык.
//
// Основные возможности:
//   - Таблица ошибок в порядке кодов.
//   - Шаблоны сообщений выводятся с плейсхолдерами как есть.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	md "github.com/nao1215/markdown"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
)

func main() {
	outputMd := flag.String("out", "api_error.md", "Path to output md")
	flag.Parse()

	slog.Info("Generate api errors docs", "out", *outputMd)

	ff, err := os.Create(*outputMd)
	if err != nil {
		slog.Error("Create docs file", "err", err)
		os.Exit(1)
	}
	defer ff.Close()

	if err := render(ff, apierrors.Catalogue); err != nil {
		slog.Error("Generate docs fail", "err", err)
		os.Exit(1)
	}
	slog.Info("Docs generated")
}

func render(w io.Writer, catalogue []apierrors.DefinedError) error {
	return md.NewMarkdown(w).
		H1("Перечень кодов ошибок").
		PlainText("Данный раздел посвящен описанию возможных ошибок от сервера.").
		CustomTable(md.TableSet{
			Header: []string{"Код", "HTTP код", "Сообщение", "Сообщение на русском"},
			Rows:   rows(catalogue),
		}, md.TableOptions{
			AutoWrapText: false,
		}).Build()
}

func rows(catalogue []apierrors.DefinedError) [][]string {
	out := make([][]string, 0, len(catalogue))
	for _, e := range catalogue {
		out = append(out, []string{
			md.Bold(strconv.Itoa(e.Code)),
			fmt.Sprintf("%d %s", e.StatusCode, md.Italic(http.StatusText(e.StatusCode))),
			md.Code(e.Err),
			md.Code(e.RuErr),
		})
	}
	return out
}
