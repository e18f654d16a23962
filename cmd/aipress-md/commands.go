package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/htmlrender"
	"github.com/aisa-it/aipress/internal/aipress/editor/markdown"
	"github.com/aisa-it/aipress/internal/aipress/editor/tiptap"
	"github.com/aisa-it/aipress/internal/aipress/validation"
)

var ErrInvalidRecord = errors.New("record is invalid")

// NewRootCmd создаёт команду aipress-md со всеми подкомандами.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aipress-md",
		Short:         "aipress-md - convert and check editor documents",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
	}
	schema := edtypes.DefaultSchema()
	root.AddCommand(newToJSONCmd(schema))
	root.AddCommand(newToMarkdownCmd(schema))
	root.AddCommand(newToHTMLCmd(schema))
	root.AddCommand(newValidateCmd())
	return root
}

// readInput читает файл, "-" означает stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func readDocument(cmd *cobra.Command, path string, schema *edtypes.Schema) (*edtypes.Node, error) {
	src, err := readInput(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err := tiptap.ParseJSON(bytes.NewReader(src), schema)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

func newToJSONCmd(schema *edtypes.Schema) *cobra.Command {
	var withFrontMatter bool
	cmd := &cobra.Command{
		Use:          "to-json <file.md>",
		Short:        "Convert Markdown to editor JSON",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(cmd, args[0])
			if err != nil {
				return fmt.Errorf("reading markdown: %w", err)
			}
			fm, body, err := markdown.SplitFrontMatter(src)
			if err != nil {
				return err
			}
			doc, err := markdown.ParseDocument(body, schema)
			if err != nil {
				return fmt.Errorf("parsing markdown: %w", err)
			}
			out, err := tiptap.Serialize(doc)
			if err != nil {
				return err
			}
			if withFrontMatter {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
					FrontMatter markdown.FrontMatter `json:"front_matter"`
					Doc         json.RawMessage      `json:"doc"`
				}{fm, out})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().BoolVar(&withFrontMatter, "front-matter", false, "wrap output with parsed front matter")
	return cmd
}

func newToMarkdownCmd(schema *edtypes.Schema) *cobra.Command {
	return &cobra.Command{
		Use:          "to-md <file.json>",
		Short:        "Convert editor JSON to Markdown",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0], schema)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), markdown.Serialize(doc))
			return err
		},
	}
}

func newToHTMLCmd(schema *edtypes.Schema) *cobra.Command {
	return &cobra.Command{
		Use:          "to-html <file.json>",
		Short:        "Render editor JSON to minified HTML",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0], schema)
			if err != nil {
				return err
			}
			out, err := htmlrender.Render(doc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "validate <kind> <file.json>",
		Short:        "Check a record: metric, user, post, publication or subscription",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := validation.NewRecord(args[0])
			if err != nil {
				return err
			}
			src, err := readInput(cmd, args[1])
			if err != nil {
				return fmt.Errorf("reading record: %w", err)
			}
			if err := json.Unmarshal(src, record); err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			if err := validation.Record(record); err != nil {
				fields := validation.Fields(err)
				if errors.Is(err, validation.ErrEmptyPost) {
					fields = []string{"Post.Content"}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid %s: %s\n", args[0], strings.Join(fields, ", "))
				return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return err
		},
	}
}
