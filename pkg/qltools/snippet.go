// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package qltools

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// SourceArchive is the name of the source archive inside a CodeQL database.
const SourceArchive = "src.zip"

// snippetError carries a failure message returned verbatim to the model.
type snippetError string

func (e snippetError) Error() string { return string(e) }

// ArchiveMember maps a source path to its name inside src.zip. CodeQL stores
// drive letters with ':' replaced by '_' and always uses forward slashes.
func ArchiveMember(filePath string) string {
	member := strings.ReplaceAll(filePath, ":", "_")
	return strings.ReplaceAll(member, `\`, "/")
}

// ExtractCodeSnippet returns lines start through end (1-based, inclusive,
// newlines preserved) of filePath inside <dbPath>/src.zip. An end beyond the
// last line is clamped. All failures are reported as errors whose message is
// suitable for a model to read.
func (t *Toolkit) ExtractCodeSnippet(ctx context.Context, dbPath, filePath string, start, end int) (string, error) {
	archiveURL := url.Join(url.Normalize(dbPath, file.Scheme), SourceArchive)
	exists, err := t.fs.Exists(ctx, archiveURL)
	if err != nil || !exists {
		return "", snippetError(fmt.Sprintf("src.zip not found in: %s", dbPath))
	}

	archive, closer, err := t.openArchive(ctx, archiveURL)
	if err != nil {
		return "", snippetError(fmt.Sprintf("Failed to extract code: %v", err))
	}
	defer closer.Close()

	entry := findMember(archive, ArchiveMember(filePath))
	if entry == nil {
		return "", snippetError(fmt.Sprintf("File %s not found in src.zip", filePath))
	}

	content, err := readMember(entry)
	if err != nil {
		return "", snippetError(fmt.Sprintf("Failed to extract code: %v", err))
	}
	if !utf8.Valid(content) {
		return "", snippetError(fmt.Sprintf("Failed to extract code: %s is not valid UTF-8", filePath))
	}
	return sliceLines(string(content), filePath, start, end)
}

// openArchive reads local archives in place. Other schemes are downloaded
// whole.
func (t *Toolkit) openArchive(ctx context.Context, archiveURL string) (*zip.Reader, io.Closer, error) {
	if url.Scheme(archiveURL, file.Scheme) == file.Scheme {
		rc, err := zip.OpenReader(url.Path(archiveURL))
		if err != nil {
			return nil, nil, err
		}
		return &rc.Reader, rc, nil
	}
	data, err := t.fs.DownloadWithURL(ctx, archiveURL)
	if err != nil {
		return nil, nil, err
	}
	r := bytes.NewReader(data)
	archive, err := zip.NewReader(r, int64(len(data)))
	if err != nil {
		return nil, nil, err
	}
	return archive, io.NopCloser(r), nil
}

func findMember(archive *zip.Reader, member string) *zip.File {
	candidates := []string{member, strings.TrimPrefix(member, "/")}
	for _, candidate := range candidates {
		for _, f := range archive.File {
			if f.Name == candidate && !f.FileInfo().IsDir() {
				return f
			}
		}
	}
	return nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func sliceLines(content, filePath string, start, end int) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	switch {
	case start < 1:
		return "", snippetError(fmt.Sprintf("Invalid line range %d-%d: start line must be at least 1", start, end))
	case end < start:
		return "", snippetError(fmt.Sprintf("Invalid line range %d-%d: end line precedes start line", start, end))
	case start > len(lines):
		return "", snippetError(fmt.Sprintf("Invalid line range %d-%d: %s has only %d lines", start, end, path.Base(ArchiveMember(filePath)), len(lines)))
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], ""), nil
}
