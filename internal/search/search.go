// Package search walks the drive folder tree looking for entries whose
// name contains a keyword.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
	"github.com/wecom-tools/quarkbot/internal/quark"
)

// listPageSize is the folder listing page size used during the walk.
const listPageSize = 200

// Match is one search hit. Path is the path of the containing folder.
type Match struct {
	FID  string
	Name string
	Path string
	Dir  bool
	Size int64
}

// Results is a finished search.
type Results struct {
	Keyword     string
	Matches     []Match // files first, then folders
	FileCount   int
	FolderCount int
}

// Engine runs bounded recursive searches over the drive.
type Engine struct {
	drive    quark.Drive
	maxDepth int
	logger   *slog.Logger
}

// New creates a search engine. maxDepth bounds the folder recursion
// (0 uses 10).
func New(drive quark.Drive, maxDepth int, logger *slog.Logger) *Engine {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Engine{
		drive:    drive,
		maxDepth: maxDepth,
		logger:   logutil.NoopIfNil(logger),
	}
}

// frame is one pending folder on the walk stack.
type frame struct {
	fid   string
	path  string
	depth int
}

// rootLabel names the search root in result paths.
func rootLabel(fid string) string {
	if fid == "0" {
		return "root"
	}
	if len(fid) > 8 {
		return "folder(" + fid[:8] + "...)"
	}
	return "folder(" + fid + ")"
}

// Search walks the tree under rootFID with an explicit stack and a
// visited set, so listing cycles cannot loop forever. The keyword match
// is a case-insensitive substring test.
func (e *Engine) Search(ctx context.Context, rootFID, keyword string) (*Results, error) {
	needle := strings.ToLower(keyword)

	var files, folders []Match
	visited := map[string]bool{rootFID: true}
	stack := []frame{{fid: rootFID, path: rootLabel(rootFID), depth: 0}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := e.listAll(ctx, cur.fid)
		if err != nil {
			e.logger.Warn("folder listing failed during search",
				"fid", cur.fid, "path", cur.path, "error", err)
			continue
		}

		for _, entry := range entries {
			if strings.Contains(strings.ToLower(entry.FileName), needle) {
				m := Match{
					FID:  entry.FID,
					Name: entry.FileName,
					Path: cur.path,
					Dir:  entry.Dir,
					Size: entry.Size,
				}
				if entry.Dir {
					folders = append(folders, m)
				} else {
					files = append(files, m)
				}
			}

			// Folders are always descended into, matched or not.
			if entry.Dir && cur.depth+1 < e.maxDepth && !visited[entry.FID] {
				visited[entry.FID] = true
				stack = append(stack, frame{
					fid:   entry.FID,
					path:  cur.path + "/" + entry.FileName,
					depth: cur.depth + 1,
				})
			}
		}
	}

	res := &Results{
		Keyword:     keyword,
		Matches:     append(files, folders...),
		FileCount:   len(files),
		FolderCount: len(folders),
	}
	return res, nil
}

// listAll pages through a folder listing until the last page.
func (e *Engine) listAll(ctx context.Context, fid string) ([]quark.Entry, error) {
	var all []quark.Entry
	for page := 1; ; page++ {
		entries, err := e.drive.ListFolder(ctx, fid, page, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if len(entries) < listPageSize {
			return all, nil
		}
	}
}

// HumanSize renders a byte count for result cards.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
