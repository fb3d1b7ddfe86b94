// Package transfer orchestrates saving shared drive content: share
// resolution, task polling, banned-name filtering, and share minting.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/store"
)

var (
	// ErrAlreadyOwned means the shared content belongs to this account.
	ErrAlreadyOwned = errors.New("shared content is already in this drive")
	// ErrEmptyShare means the share link resolved to an empty listing.
	ErrEmptyShare = errors.New("share link has no content")
)

// listPageSize is the page size for destination folder listings.
const listPageSize = 200

// Options configures the orchestrator.
type Options struct {
	// DestFID is the destination folder for saved content ("0" is root).
	DestFID string
	// AdFID, when set, is appended to every minted share's entry list.
	AdFID string
	// RecentKeep bounds the recent-folders list.
	RecentKeep int
	// Gated shares get an auto-generated 4-character passcode.
	Gated bool
}

// Request is one transfer job.
type Request struct {
	Link          string
	GenerateShare bool
}

// Result describes a finished transfer.
type Result struct {
	SavedNames  []string
	FileCount   int
	FolderCount int
	Subfolder   string
	DestFID     string
	Removed     []string // banned-name entries deleted after the save

	// Share is set when a share link was minted. ShareErr carries a
	// share-step failure; the transfer itself still succeeded.
	Share    *quark.ShareLink
	ShareErr error
}

// Orchestrator drives transfers end to end.
type Orchestrator struct {
	drive    quark.Drive
	store    store.Store
	keywords *Keywords
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator.
func New(drive quark.Drive, st store.Store, kw *Keywords, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.DestFID == "" {
		opts.DestFID = "0"
	}
	if opts.RecentKeep <= 0 {
		opts.RecentKeep = 5
	}
	if kw == nil {
		kw = NewKeywords(nil)
	}
	return &Orchestrator{
		drive:    drive,
		store:    st,
		keywords: kw,
		opts:     opts,
		logger:   logutil.NoopIfNil(logger),
		now:      time.Now,
	}
}

// Keywords returns the banned keyword list.
func (o *Orchestrator) Keywords() *Keywords { return o.keywords }

// Transfer resolves the share link, saves its content, filters banned
// names, and optionally mints a fresh share link. A share-step failure
// is reported in Result.ShareErr and does not fail the transfer.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (*Result, error) {
	pwdID, passcode, err := quark.ParseShareLink(req.Link)
	if err != nil {
		return nil, err
	}

	stoken, err := o.drive.ShareToken(ctx, pwdID, passcode)
	if err != nil {
		return nil, err
	}

	detail, err := o.drive.ShareDetail(ctx, pwdID, stoken)
	if err != nil {
		return nil, err
	}
	if detail.IsOwner {
		return nil, ErrAlreadyOwned
	}
	if len(detail.Items) == 0 {
		return nil, ErrEmptyShare
	}

	res := &Result{DestFID: o.opts.DestFID}
	fids := make([]string, 0, len(detail.Items))
	tokens := make([]string, 0, len(detail.Items))
	for _, item := range detail.Items {
		res.SavedNames = append(res.SavedNames, item.FileName)
		fids = append(fids, item.FID)
		tokens = append(tokens, item.ShareFIDToken)
		if item.Dir {
			res.FolderCount++
		} else {
			res.FileCount++
		}
	}

	// A dedicated subfolder keeps a mixed files+folders share mintable
	// as one link. Only created when a share was asked for.
	if req.GenerateShare && res.FileCount > 0 && res.FolderCount > 0 {
		name := "transfer_" + o.now().Format("20060102_150405")
		fid, err := o.drive.CreateFolder(ctx, o.opts.DestFID, name)
		if err != nil || fid == "" {
			o.logger.Warn("subfolder creation failed, saving to default folder",
				"name", name, "error", err)
		} else {
			res.DestFID = fid
			res.Subfolder = name
		}
	}

	taskID, err := o.drive.SaveShare(ctx, quark.SaveRequest{
		PwdID:     pwdID,
		SToken:    stoken,
		ToPdirFID: res.DestFID,
		FIDs:      fids,
		FIDTokens: tokens,
	})
	if err != nil {
		return nil, err
	}
	if _, err := o.drive.AwaitTask(ctx, taskID); err != nil {
		return nil, err
	}

	// The banned-name filter runs on every transfer, share or not.
	removed, err := o.filterSaved(ctx, res.DestFID, res.SavedNames)
	if err != nil {
		o.logger.Warn("banned-name filter failed", "dest", res.DestFID, "error", err)
	}
	res.Removed = removed

	o.touchRecent(ctx, res.DestFID)

	if req.GenerateShare {
		res.Share, res.ShareErr = o.mintShare(ctx, res)
		if res.ShareErr != nil {
			o.logger.Warn("share minting failed", "link", req.Link, "error", res.ShareErr)
		}
	}

	return res, nil
}

// filterSaved deletes just-saved entries whose name matches the banned
// keyword list.
func (o *Orchestrator) filterSaved(ctx context.Context, destFID string, savedNames []string) ([]string, error) {
	if len(o.keywords.List()) == 0 {
		return nil, nil
	}

	saved := make(map[string]bool, len(savedNames))
	for _, n := range savedNames {
		saved[n] = true
	}

	entries, err := o.listAll(ctx, destFID)
	if err != nil {
		return nil, err
	}

	var removeFIDs, removedNames []string
	for _, e := range entries {
		if saved[e.FileName] && o.keywords.Match(e.FileName) {
			removeFIDs = append(removeFIDs, e.FID)
			removedNames = append(removedNames, e.FileName)
		}
	}
	if len(removeFIDs) == 0 {
		return nil, nil
	}

	if err := o.drive.DeleteEntries(ctx, removeFIDs); err != nil {
		return nil, err
	}
	o.logger.Info("removed banned entries after save",
		"dest", destFID, "count", len(removedNames))
	return removedNames, nil
}

// touchRecent records the destination in the recent-folders list.
// Persistence failures only log; the transfer already succeeded.
func (o *Orchestrator) touchRecent(ctx context.Context, fid string) {
	if o.store == nil {
		return
	}
	if err := o.store.TouchRecentFolder(ctx, fid, o.opts.RecentKeep); err != nil {
		o.logger.Warn("failed to record recent folder", "fid", fid, "error", err)
	}
}

// mintShare creates and finalizes a share over the saved entries.
func (o *Orchestrator) mintShare(ctx context.Context, res *Result) (*quark.ShareLink, error) {
	entries, err := o.listAll(ctx, res.DestFID)
	if err != nil {
		return nil, err
	}

	var shareFIDs []string
	title := ""
	if res.Subfolder != "" {
		// The destination is the fresh subfolder: everything in it was
		// just saved.
		for _, e := range entries {
			shareFIDs = append(shareFIDs, e.FID)
		}
		title = res.Subfolder
	} else {
		saved := make(map[string]bool, len(res.SavedNames))
		for _, n := range res.SavedNames {
			saved[n] = true
		}
		removed := make(map[string]bool, len(res.Removed))
		for _, n := range res.Removed {
			removed[n] = true
		}
		for _, e := range entries {
			if saved[e.FileName] && !removed[e.FileName] {
				shareFIDs = append(shareFIDs, e.FID)
				if title == "" {
					title = e.FileName
				}
			}
		}
	}
	if len(shareFIDs) == 0 {
		return nil, fmt.Errorf("no saved entries found in destination folder")
	}

	return o.ShareEntries(ctx, shareFIDs, title)
}

// ShareEntries mints a share link over the given entries. The optional
// advertising entry is appended, and gated shares get a generated
// passcode.
func (o *Orchestrator) ShareEntries(ctx context.Context, fids []string, title string) (*quark.ShareLink, error) {
	if o.opts.AdFID != "" {
		fids = append(append([]string(nil), fids...), o.opts.AdFID)
	}

	shareReq := quark.ShareRequest{
		FIDs:        fids,
		Title:       title,
		URLType:     1,
		ExpiredType: 1,
	}
	if o.opts.Gated {
		shareReq.URLType = 2
		shareReq.Passcode = randPasscode(4)
	}

	taskID, err := o.drive.CreateShare(ctx, shareReq)
	if err != nil {
		return nil, err
	}
	shareID, err := o.drive.AwaitShareID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	link, err := o.drive.SharePassword(ctx, shareID)
	if err != nil {
		return nil, err
	}

	if link.Passcode != "" {
		link.ShareURL += "?pwd=" + link.Passcode
	}
	return link, nil
}

// listAll pages through a destination folder listing.
func (o *Orchestrator) listAll(ctx context.Context, fid string) ([]quark.Entry, error) {
	var all []quark.Entry
	for page := 1; ; page++ {
		entries, err := o.drive.ListFolder(ctx, fid, page, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if len(entries) < listPageSize {
			return all, nil
		}
	}
}

const passcodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// randPasscode generates a short share passcode.
func randPasscode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = passcodeAlphabet[rand.Intn(len(passcodeAlphabet))]
	}
	return string(b)
}
