package quark

import "context"

// ShareItem is one entry of a shared link's listing.
type ShareItem struct {
	FID           string `json:"fid"`
	FileName      string `json:"file_name"`
	PdirFID       string `json:"pdir_fid"`
	ShareFIDToken string `json:"share_fid_token"`
	Dir           bool   `json:"dir"`
	Size          int64  `json:"size"`
}

// ShareDetail is the resolved listing of a shared link.
type ShareDetail struct {
	IsOwner bool
	Items   []ShareItem
}

// SaveRequest submits shared content into the caller's drive.
type SaveRequest struct {
	PwdID     string
	SToken    string
	ToPdirFID string
	FIDs      []string
	FIDTokens []string
}

// SaveAs describes where a finished save task put its content.
type SaveAs struct {
	ToPdirFID  string   `json:"to_pdir_fid"`
	ToPdirName string   `json:"to_pdir_name"`
	TopFIDs    []string `json:"save_as_top_fids"`
}

// TaskResult is a finished drive task.
type TaskResult struct {
	TaskID  string `json:"task_id"`
	Status  int    `json:"status"`
	ShareID string `json:"share_id"`
	SaveAs  SaveAs `json:"save_as"`
}

// Entry is one entry of a drive folder listing.
type Entry struct {
	FID      string `json:"fid"`
	FileName string `json:"file_name"`
	PdirFID  string `json:"pdir_fid"`
	Dir      bool   `json:"dir"`
	FileType int    `json:"file_type"`
	Size     int64  `json:"size"`
}

// ShareRequest mints a share link over a set of entries.
type ShareRequest struct {
	FIDs        []string
	Title       string
	URLType     int
	ExpiredType int
	Passcode    string
}

// ShareLink is a finalized share link.
type ShareLink struct {
	ShareURL string `json:"share_url"`
	Title    string `json:"title"`
	Passcode string `json:"passcode"`
}

// Drive is the surface of the drive client used by the orchestrator and
// the search engine. *Client implements it; tests substitute fakes.
type Drive interface {
	ShareToken(ctx context.Context, pwdID, passcode string) (string, error)
	ShareDetail(ctx context.Context, pwdID, stoken string) (*ShareDetail, error)
	SaveShare(ctx context.Context, req SaveRequest) (string, error)
	AwaitTask(ctx context.Context, taskID string) (*TaskResult, error)
	CreateFolder(ctx context.Context, parentFID, name string) (string, error)
	ListFolder(ctx context.Context, fid string, page, size int) ([]Entry, error)
	DeleteEntries(ctx context.Context, fids []string) error
	CreateShare(ctx context.Context, req ShareRequest) (string, error)
	AwaitShareID(ctx context.Context, taskID string) (string, error)
	SharePassword(ctx context.Context, shareID string) (*ShareLink, error)
	AccountNickname(ctx context.Context) (string, error)
}
