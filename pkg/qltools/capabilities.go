package qltools

import (
	"context"
	"encoding/json"

	"github.com/jllopis/qlcrew/pkg/capability"
)

// Capability names published by the toolkit.
const (
	ExtractCodeSnippetName  = "extract_code_snippet"
	ViewCodeQLTemplatesName = "view_codeql_templates"
	WriteQueryName          = "write_query"
)

// Capabilities returns the local capabilities in definition order.
// Failures are returned as errors so the invocation is recorded as failed;
// the error text is what the model reads.
func (t *Toolkit) Capabilities() []*capability.Capability {
	return []*capability.Capability{
		capability.MustLocal(ExtractCodeSnippetName,
			"Extracts the code snippet between start line number and end line number from the registered CodeQL database's src.zip file.",
			[]capability.Param{
				{Name: "db_path", Type: capability.TypeString, Required: true, Description: "Path of the CodeQL database directory"},
				{Name: "file_path", Type: capability.TypeString, Required: true, Description: "Source file path as recorded in the database"},
				{Name: "start_line", Type: capability.TypeInteger, Required: true, Description: "First line, 1-based"},
				{Name: "end_line", Type: capability.TypeInteger, Required: true, Description: "Last line, inclusive"},
			},
			func(ctx context.Context, args capability.Args) (string, error) {
				return t.ExtractCodeSnippet(ctx, args.String("db_path"), args.String("file_path"), args.Int("start_line"), args.Int("end_line"))
			}),
		capability.MustLocal(ViewCodeQLTemplatesName,
			"View all CodeQL templates in the specified folder and return them as a dictionary, with descriptions as keys and templates as values.",
			[]capability.Param{
				{Name: "template_folder", Type: capability.TypeString, Required: true, Description: "Folder holding the query templates"},
			},
			func(ctx context.Context, args capability.Args) (string, error) {
				templates, err := t.ViewTemplates(ctx, args.String("template_folder"))
				if err != nil {
					return "", err
				}
				raw, err := json.Marshal(templates)
				if err != nil {
					return "", err
				}
				return string(raw), nil
			}),
		capability.MustLocal(WriteQueryName,
			"Write the generated query to a ql file and return its path.",
			[]capability.Param{
				{Name: "query", Type: capability.TypeString, Required: true, Description: "Complete CodeQL query text"},
				{Name: "template_folder", Type: capability.TypeString, Required: true, Description: "Folder to write the query into"},
			},
			func(ctx context.Context, args capability.Args) (string, error) {
				return t.WriteQuery(ctx, args.String("query"), args.String("template_folder")), nil
			}),
	}
}
