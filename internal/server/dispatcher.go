package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wecom-tools/quarkbot/internal/conversation"
	"github.com/wecom-tools/quarkbot/internal/intent"
	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
	"github.com/wecom-tools/quarkbot/internal/search"
	"github.com/wecom-tools/quarkbot/internal/store"
	"github.com/wecom-tools/quarkbot/internal/transfer"
	"github.com/wecom-tools/quarkbot/internal/wecom"
)

// Menu event keys.
const (
	MenuTransferShare = "/transfer_share"
	MenuSearch        = "/search"
	MenuHelp          = "/help"
	MenuVerify        = "verify"
	MenuAddBan        = "/add_ban"
	MenuScanBan       = "/scan_ban"
)

// jobTimeout bounds one delivery's background processing.
const jobTimeout = 10 * time.Minute

// DispatcherConfig holds the dispatcher knobs.
type DispatcherConfig struct {
	SearchRoot string
	PageSize   int
}

// Dispatcher routes an admitted delivery to the matching handler. All
// handling for one user runs under that user's conversation lock, and
// nothing escapes the top-level Dispatch call.
type Dispatcher struct {
	cfg    DispatcherConfig
	deps   *Deps
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig, deps *Deps, logger *slog.Logger) *Dispatcher {
	if cfg.SearchRoot == "" {
		cfg.SearchRoot = "0"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = search.DefaultPageSize
	}
	return &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		logger: logutil.NoopIfNil(logger),
	}
}

// Dispatch processes one admitted delivery in the background.
func (d *Dispatcher) Dispatch(env *wecom.Envelope) {
	jobID := uuid.NewString()
	logger := d.logger.With("job_id", jobID, "from", env.FromUserName)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while handling delivery", "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	user := env.FromUserName
	d.deps.States.Do(user, func(st *conversation.State) {
		switch env.MsgType {
		case wecom.MsgTypeText:
			d.handleText(ctx, logger, user, env.Content, st)
		case wecom.MsgTypeEvent:
			d.handleMenuClick(ctx, logger, user, env.EventKey, st)
		}
	})
}

// handleMenuClick applies a menu event.
func (d *Dispatcher) handleMenuClick(ctx context.Context, logger *slog.Logger, user, key string, st *conversation.State) {
	logger.Info("menu click", "key", key, "mode", st.Mode.String())

	switch key {
	case MenuTransferShare:
		st.Mode = conversation.ModeTransferShare
		d.sendInfo(ctx, user, "Transfer and share",
			"Send a share link and you will get a fresh share link back after the transfer.")

	case MenuSearch:
		st.Mode = conversation.ModeSearch
		d.sendInfo(ctx, user, "Search", "Send a keyword to search your drive.")

	case MenuHelp:
		d.sendMarkdown(ctx, user, helpText)

	case MenuVerify:
		d.verifyCredential(ctx, user)

	case MenuAddBan:
		st.Mode = conversation.ModeAwaitingBanInput
		d.sendInfo(ctx, user, "Blocked keywords",
			"Send keywords separated by commas. They will be added to the block-list.")

	case MenuScanBan:
		d.scanRecent(ctx, user)

	default:
		logger.Warn("unknown menu key", "key", key)
	}
}

// handleText classifies and applies a text message.
func (d *Dispatcher) handleText(ctx context.Context, logger *slog.Logger, user, text string, st *conversation.State) {
	// The ban-input prompt is consumed by exactly one message, whatever
	// that message turns out to be.
	awaitingBan := st.Mode == conversation.ModeAwaitingBanInput

	it := intent.Classify(text, st.Mode, st.HasResults())
	logger.Info("message classified", "intent", it.Kind.String(), "mode", st.Mode.String())

	if awaitingBan {
		st.Mode = conversation.ModeIdle
	}

	switch it.Kind {
	case intent.SetCredential:
		d.setCredential(ctx, user, it.Text)

	case intent.Verify:
		d.verifyCredential(ctx, user)

	case intent.Help:
		d.sendMarkdown(ctx, user, helpText)

	case intent.Search:
		// Search mode covers one query; running it returns to idle with
		// the results cached for paging and selection.
		st.Mode = conversation.ModeIdle
		d.runSearch(ctx, user, it.Text, st)

	case intent.PageNext:
		st.Results.Page++
		d.sendResultsPage(ctx, user, st)

	case intent.PagePrev:
		st.Results.Page--
		d.sendResultsPage(ctx, user, st)

	case intent.SelectIndex:
		st.Mode = conversation.ModeIdle
		d.selectResult(ctx, user, it.Index, st)

	case intent.SingleLink, intent.MultiLink:
		// Links always transfer; a pending share request applies to this
		// transfer only.
		share := st.Mode == conversation.ModeTransferShare
		st.Mode = conversation.ModeIdle
		d.transferLinks(ctx, logger, user, text, it.Links, share)

	case intent.Error:
		d.sendWarning(ctx, user, "Invalid input", it.Text)

	case intent.Unknown:
		if awaitingBan {
			d.addBanKeywords(ctx, user, it.Text)
			return
		}
		d.sendInfo(ctx, user, "Unrecognized message",
			"Send a share link to transfer it, or `help` for the command list.")
	}
}

// setCredential stores a new drive cookie after checking it works.
func (d *Dispatcher) setCredential(ctx context.Context, user, cookie string) {
	if d.deps.SetCookie != nil {
		d.deps.SetCookie(cookie)
	}

	nickname, err := d.deps.Drive.AccountNickname(ctx)
	if err != nil {
		d.sendWarning(ctx, user, "Credential saved, verification failed",
			"The new cookie was applied but the drive rejected it: "+err.Error())
		return
	}

	if d.deps.Store != nil {
		if err := d.deps.Store.PutSetting(ctx, store.SettingDriveCookie, cookie); err != nil {
			d.logger.Warn("failed to persist drive cookie", "error", err)
		}
	}
	d.sendSuccess(ctx, user, "Credential updated", "Signed in as "+nickname+".")
}

// verifyCredential checks the current drive cookie.
func (d *Dispatcher) verifyCredential(ctx context.Context, user string) {
	nickname, err := d.deps.Drive.AccountNickname(ctx)
	if err != nil {
		d.sendWarning(ctx, user, "Credential invalid",
			"The drive rejected the current cookie. Send `cookie: <value>` to update it.")
		return
	}
	d.sendSuccess(ctx, user, "Credential valid", "Signed in as "+nickname+".")
}

// addBanKeywords merges user-supplied keywords into the block-list.
func (d *Dispatcher) addBanKeywords(ctx context.Context, user, text string) {
	words := transfer.ParseInput(text)
	if len(words) == 0 {
		d.sendWarning(ctx, user, "No keywords", "Nothing was added to the block-list.")
		return
	}

	added := d.deps.Orchestrator.Keywords().Add(words)
	if d.deps.Store != nil {
		if _, err := d.deps.Store.AddBannedKeywords(ctx, words); err != nil {
			d.logger.Warn("failed to persist banned keywords", "error", err)
		}
	}

	d.sendSuccess(ctx, user, "Block-list updated",
		fmt.Sprintf("%d new keyword(s) added, %d total.",
			added, len(d.deps.Orchestrator.Keywords().List())))
}

// scanRecent re-scans the recent transfer folders for banned names.
func (d *Dispatcher) scanRecent(ctx context.Context, user string) {
	sum, err := d.deps.Orchestrator.ScanRecent(ctx)
	if err != nil {
		d.sendError(ctx, user, "Scan failed", describeErr(err))
		return
	}
	d.sendSuccess(ctx, user, "Scan finished",
		fmt.Sprintf("Folders: %d\nEntries scanned: %d\nMatched: %d\nDeleted: %d",
			sum.Folders, sum.Scanned, sum.Matched, sum.Deleted))
}

// transferLinks transfers every link in order. In share mode each
// transferred link is replaced in the original text by its fresh share
// link, and the rewritten text is sent back for copy-pasting.
func (d *Dispatcher) transferLinks(ctx context.Context, logger *slog.Logger, user, originalText string, links []string, share bool) {
	rewritten := originalText
	minted := 0

	for _, link := range links {
		res, err := d.deps.Orchestrator.Transfer(ctx, transfer.Request{
			Link:          link,
			GenerateShare: share,
		})
		if err != nil {
			logger.Warn("transfer failed", "link", link, "error", err)
			d.sendError(ctx, user, "Transfer failed", link+"\n"+describeErr(err))
			continue
		}

		summary := fmt.Sprintf("Saved %d file(s) and %d folder(s).", res.FileCount, res.FolderCount)
		if len(res.Removed) > 0 {
			summary += fmt.Sprintf("\nRemoved %d blocked entr(ies): %s",
				len(res.Removed), strings.Join(res.Removed, ", "))
		}

		switch {
		case share && res.Share != nil:
			minted++
			rewritten = strings.Replace(rewritten, link, res.Share.ShareURL, 1)
			d.sendSuccess(ctx, user, "Transferred and shared",
				summary+"\n"+res.Share.ShareURL)
		case share && res.ShareErr != nil:
			d.sendWarning(ctx, user, "Transferred, share failed",
				summary+"\nShare step: "+describeErr(res.ShareErr))
		default:
			d.sendSuccess(ctx, user, "Transferred", summary)
		}
	}

	if share && len(links) > 1 && minted > 0 && rewritten != originalText {
		d.sendText(ctx, user, rewritten)
	}
}

// runSearch executes a search and renders the first result page.
func (d *Dispatcher) runSearch(ctx context.Context, user, keyword string, st *conversation.State) {
	res, err := d.deps.Search.Search(ctx, d.cfg.SearchRoot, keyword)
	if err != nil {
		d.sendError(ctx, user, "Search failed", describeErr(err))
		return
	}

	items := make([]conversation.Item, 0, len(res.Matches))
	for _, m := range res.Matches {
		items = append(items, conversation.Item{
			FID:  m.FID,
			Name: m.Name,
			Path: m.Path,
			Dir:  m.Dir,
			Size: m.Size,
		})
	}
	st.Results = &conversation.SearchResults{
		Keyword:     keyword,
		Items:       items,
		FileCount:   res.FileCount,
		FolderCount: res.FolderCount,
		Page:        1,
	}

	if len(items) == 0 {
		d.sendInfo(ctx, user, "No results", "Nothing matched \""+keyword+"\".")
		return
	}
	d.sendResultsPage(ctx, user, st)
}

// sendResultsPage renders the current page of cached results as cards.
func (d *Dispatcher) sendResultsPage(ctx context.Context, user string, st *conversation.State) {
	if !st.HasResults() {
		d.sendInfo(ctx, user, "No results", "Run a search first.")
		return
	}

	res := st.Results
	start, end, page, totalPages := search.PageBounds(len(res.Items), res.Page, d.cfg.PageSize)
	res.Page = page

	articles := []wecom.Article{{
		Title: fmt.Sprintf("\"%s\": %d file(s), %d folder(s)", res.Keyword, res.FileCount, res.FolderCount),
		Description: fmt.Sprintf("Page %d/%d. Reply with a number to share an entry, n/p to flip pages.",
			page, totalPages),
	}}
	for i := start; i < end; i++ {
		item := res.Items[i]
		kind := "file"
		desc := item.Path + " · " + search.HumanSize(item.Size)
		if item.Dir {
			kind = "folder"
			desc = item.Path
		}
		articles = append(articles, wecom.Article{
			Title:       fmt.Sprintf("%d. [%s] %s", i+1, kind, item.Name),
			Description: desc,
		})
	}

	if err := d.deps.Gateway.SendNews(ctx, user, articles); err != nil {
		d.logger.Warn("failed to send results page", "error", err)
	}
}

// selectResult mints a share link for the chosen search result.
func (d *Dispatcher) selectResult(ctx context.Context, user string, index int, st *conversation.State) {
	res := st.Results
	total := 0
	if res != nil {
		total = len(res.Items)
	}
	if index < 1 || index > total {
		d.sendWarning(ctx, user, "Invalid selection",
			fmt.Sprintf("Pick a number between 1 and %d.", total))
		return
	}

	item := res.Items[index-1]
	link, err := d.deps.Orchestrator.ShareEntries(ctx, []string{item.FID}, item.Name)
	if err != nil {
		d.sendError(ctx, user, "Share failed", describeErr(err))
		return
	}
	d.sendSuccess(ctx, user, "Share link ready", item.Name+"\n"+link.ShareURL)
}
