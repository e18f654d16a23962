// Утилита aipress-md конвертирует документы редактора между Markdown, JSON и HTML и проверяет записи
// предметной области.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
