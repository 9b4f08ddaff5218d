package qltools

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
)

var descriptionPattern = regexp.MustCompile(`@description\s+([^\n]+)`)

// TemplateDescription returns the first @description value of a query, or
// false when the tag is absent.
func TemplateDescription(content string) (string, bool) {
	m := descriptionPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	desc := strings.TrimSpace(m[1])
	return desc, desc != ""
}

// ViewTemplates maps each template's @description to its raw content for
// files in folder matching the template glob. Files without a description
// are skipped. Files are read in name order, so when two templates share a
// description the last name wins.
func (t *Toolkit) ViewTemplates(ctx context.Context, folder string) (map[string]string, error) {
	folderURL := url.Normalize(folder, file.Scheme)
	exists, err := t.fs.Exists(ctx, folderURL)
	if err != nil || !exists {
		return nil, snippetError(fmt.Sprintf("Template folder not found: %s", folder))
	}

	objects, err := t.fs.List(ctx, folderURL, option.NewRecursive(false))
	if err != nil {
		return nil, snippetError(fmt.Sprintf("Failed to list templates: %v", err))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name() < objects[j].Name() })

	templates := make(map[string]string)
	for _, obj := range objects {
		if obj.IsDir() {
			continue
		}
		if ok, _ := path.Match(t.templateGlob, obj.Name()); !ok {
			continue
		}
		data, err := t.fs.Download(ctx, obj)
		if err != nil {
			return nil, snippetError(fmt.Sprintf("Failed to read template %s: %v", obj.Name(), err))
		}
		content := string(data)
		desc, ok := TemplateDescription(content)
		if !ok {
			continue
		}
		templates[desc] = content
	}
	return templates, nil
}
