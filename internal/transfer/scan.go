package transfer

import (
	"context"
)

// scanMaxDepth bounds the ban re-scan recursion.
const scanMaxDepth = 10

// ScanSummary reports a bulk ban re-scan.
type ScanSummary struct {
	Folders int
	Scanned int
	Matched int
	Deleted int
}

// ScanRecent walks every recent transfer folder and deletes entries
// whose name matches the banned keyword list. The walk uses an explicit
// stack with a visited set, like the search engine.
func (o *Orchestrator) ScanRecent(ctx context.Context) (*ScanSummary, error) {
	sum := &ScanSummary{}
	if o.store == nil {
		return sum, nil
	}

	fids, err := o.store.RecentFolders(ctx, o.opts.RecentKeep)
	if err != nil {
		return nil, err
	}
	sum.Folders = len(fids)

	visited := make(map[string]bool)
	for _, root := range fids {
		if visited[root] {
			continue
		}
		visited[root] = true

		type frame struct {
			fid   string
			depth int
		}
		stack := []frame{{fid: root}}

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := o.listAll(ctx, cur.fid)
			if err != nil {
				o.logger.Warn("listing failed during ban scan", "fid", cur.fid, "error", err)
				continue
			}

			var removeFIDs []string
			for _, e := range entries {
				sum.Scanned++
				if o.keywords.Match(e.FileName) {
					sum.Matched++
					removeFIDs = append(removeFIDs, e.FID)
					continue
				}
				if e.Dir && cur.depth+1 < scanMaxDepth && !visited[e.FID] {
					visited[e.FID] = true
					stack = append(stack, frame{fid: e.FID, depth: cur.depth + 1})
				}
			}

			if len(removeFIDs) > 0 {
				if err := o.drive.DeleteEntries(ctx, removeFIDs); err != nil {
					o.logger.Warn("delete failed during ban scan", "fid", cur.fid, "error", err)
					continue
				}
				sum.Deleted += len(removeFIDs)
			}
		}
	}

	return sum, nil
}
