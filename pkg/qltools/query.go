package qltools

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// QueryTimeLayout names persisted queries.
const QueryTimeLayout = "20060102_150405"

const queryExt = ".ql"

// WriteQuery persists query as <YYYYMMDD_HHMMSS>.ql inside folder and returns
// the file path. A suffix _N is added when the name is taken. Any failure
// yields an empty path.
func (t *Toolkit) WriteQuery(ctx context.Context, query, folder string) string {
	folderURL := url.Normalize(folder, file.Scheme)
	exists, err := t.fs.Exists(ctx, folderURL)
	if err != nil || !exists {
		slog.WarnContext(ctx, "query folder not found", "folder", folder)
		return ""
	}

	stamp := t.now().Format(QueryTimeLayout)
	name := stamp + queryExt
	for n := 1; ; n++ {
		taken, err := t.fs.Exists(ctx, url.Join(folderURL, name))
		if err != nil {
			slog.WarnContext(ctx, "failed to check query file", "folder", folder, "error", err)
			return ""
		}
		if !taken {
			break
		}
		name = fmt.Sprintf("%s_%d%s", stamp, n, queryExt)
	}

	target := url.Join(folderURL, name)
	if err := t.fs.Upload(ctx, target, file.DefaultFileOsMode, strings.NewReader(query)); err != nil {
		slog.WarnContext(ctx, "failed to write query", "path", target, "error", err)
		return ""
	}
	return path.Join(folder, name)
}

// ParseQueryTimestamp recovers the creation time encoded in a persisted
// query name. Collision suffixes are ignored.
func ParseQueryTimestamp(name string) (time.Time, error) {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(name, `\`, "/")), queryExt)
	if len(base) < len(QueryTimeLayout) {
		return time.Time{}, fmt.Errorf("query name %q has no timestamp", name)
	}
	stamp, rest := base[:len(QueryTimeLayout)], base[len(QueryTimeLayout):]
	if rest != "" && !isCollisionSuffix(rest) {
		return time.Time{}, fmt.Errorf("query name %q has an unexpected suffix", name)
	}
	ts, err := time.ParseInLocation(QueryTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("query name %q: %w", name, err)
	}
	return ts, nil
}

func isCollisionSuffix(s string) bool {
	if len(s) < 2 || s[0] != '_' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
