package quark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wecom-tools/quarkbot/internal/platform/httpclient"
	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
)

// taskStatusDone is the drive task status for a finished task.
const taskStatusDone = 2

// errTaskPending signals that a polled task is still running.
var errTaskPending = errors.New("task still pending")

// Config holds the drive client settings.
type Config struct {
	APIBase     string
	AccountBase string
	Cookie      string
	UserAgent   string

	TaskPollTries     int
	TaskPollInterval  time.Duration
	SharePollTries    int
	SharePollInterval time.Duration
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.APIBase == "" {
		c.APIBase = "https://drive-pc.quark.cn"
	}
	if c.AccountBase == "" {
		c.AccountBase = "https://pan.quark.cn"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.TaskPollTries <= 0 {
		c.TaskPollTries = 50
	}
	if c.TaskPollInterval <= 0 {
		c.TaskPollInterval = 750 * time.Millisecond
	}
	if c.SharePollTries <= 0 {
		c.SharePollTries = 30
	}
	if c.SharePollInterval <= 0 {
		c.SharePollInterval = 500 * time.Millisecond
	}
}

// Client talks to the drive API. Safe for concurrent use; the cookie can
// be swapped at runtime via SetCookie.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger

	mu     sync.RWMutex
	cookie string
}

// NewClient creates a drive client.
func NewClient(cfg Config, httpc *httpclient.Client, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		http:   httpc,
		logger: logutil.NoopIfNil(logger),
		cookie: cfg.Cookie,
	}
}

// SetCookie replaces the drive credential.
func (c *Client) SetCookie(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookie = cookie
}

// Cookie returns the current drive credential.
func (c *Client) Cookie() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookie
}

// metadata is the paging block of a drive response.
type metadata struct {
	Total int `json:"_total"`
	Size  int `json:"_size"`
	Count int `json:"_count"`
	Page  int `json:"_page"`
}

// envelope is the common drive response frame.
type envelope struct {
	Status   int             `json:"status"`
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Metadata metadata        `json:"metadata"`
}

// apiURL builds a drive API URL with the standard query parameters the
// web client always sends.
func (c *Client) apiURL(path string, q url.Values) string {
	v := url.Values{
		"pr":           {"ucpro"},
		"fr":           {"pc"},
		"uc_param_str": {""},
		"__dt":         {strconv.Itoa(rand.Intn(99999999))},
		"__t":          {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}
	for k, vs := range q {
		v[k] = vs
	}
	return c.cfg.APIBase + path + "?" + v.Encode()
}

// do executes one drive API call and parses the response envelope.
// Non-success envelopes become an *APIError with the kind assigned here.
func (c *Client) do(ctx context.Context, op, method, urlStr string, body any, out any) (*metadata, error) {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, urlStr, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", c.Cookie())
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Origin", "https://pan.quark.cn")
	req.Header.Set("Referer", "https://pan.quark.cn/")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("quark %s: %w", op, err)
	}
	raw, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("quark %s: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("quark %s: %w", op, ErrInvalidCookie)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Op: op, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Kind: KindRetryable}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("quark %s: decode response: %w", op, err)
	}
	if env.Code != 0 {
		return &env.Metadata, classify(op, env.Code, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("quark %s: decode data: %w", op, err)
		}
	}
	return &env.Metadata, nil
}

// ShareToken resolves a share's stoken from its pwd id and passcode.
func (c *Client) ShareToken(ctx context.Context, pwdID, passcode string) (string, error) {
	var data struct {
		SToken string `json:"stoken"`
	}
	u := c.apiURL("/1/clouddrive/share/sharepage/token", nil)
	_, err := c.do(ctx, "share token", http.MethodPost, u, map[string]string{
		"pwd_id":   pwdID,
		"passcode": passcode,
	}, &data)
	if err != nil {
		return "", err
	}
	if data.SToken == "" {
		return "", &APIError{Op: "share token", Message: "empty stoken", Kind: KindFatal}
	}
	return data.SToken, nil
}

// ShareDetail fetches the full top-level listing of a share, following
// the API's pagination until the last page.
func (c *Client) ShareDetail(ctx context.Context, pwdID, stoken string) (*ShareDetail, error) {
	const pageSize = 50

	detail := &ShareDetail{}
	for page := 1; ; page++ {
		q := url.Values{
			"pwd_id":   {pwdID},
			"stoken":   {stoken},
			"pdir_fid": {"0"},
			"_page":    {strconv.Itoa(page)},
			"_size":    {strconv.Itoa(pageSize)},
			"_sort":    {"file_type:asc,updated_at:desc"},
		}

		var data struct {
			IsOwner int         `json:"is_owner"`
			List    []ShareItem `json:"list"`
		}
		md, err := c.do(ctx, "share detail", http.MethodGet, c.apiURL("/1/clouddrive/share/sharepage/detail", q), nil, &data)
		if err != nil {
			return nil, err
		}

		if data.IsOwner == 1 {
			detail.IsOwner = true
		}
		detail.Items = append(detail.Items, data.List...)

		if md.Total <= md.Size || md.Count < md.Size {
			break
		}
	}
	return detail, nil
}

// SaveShare submits shared content into the drive and returns the task id.
func (c *Client) SaveShare(ctx context.Context, req SaveRequest) (string, error) {
	var data struct {
		TaskID string `json:"task_id"`
	}
	u := c.apiURL("/1/clouddrive/share/sharepage/save", nil)
	_, err := c.do(ctx, "save share", http.MethodPost, u, map[string]any{
		"fid_list":       req.FIDs,
		"fid_token_list": req.FIDTokens,
		"to_pdir_fid":    req.ToPdirFID,
		"pwd_id":         req.PwdID,
		"stoken":         req.SToken,
		"pdir_fid":       "0",
		"scene":          "link",
	}, &data)
	if err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", &APIError{Op: "save share", Message: "empty task_id", Kind: KindFatal}
	}
	return data.TaskID, nil
}

// pollBackOff builds the inter-attempt delay for polling loops. A
// multiplier of 1 keeps the base interval constant; the randomization
// factor spreads attempts the way the web client does.
func pollBackOff(interval time.Duration, randomize bool) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.Multiplier = 1.0
	b.MaxInterval = 2 * interval
	if randomize {
		b.RandomizationFactor = 0.34
	} else {
		b.RandomizationFactor = 0
	}
	return b
}

// pollTask fetches one task snapshot.
func (c *Client) pollTask(ctx context.Context, taskID string, retryIndex int) (*TaskResult, error) {
	q := url.Values{
		"task_id":     {taskID},
		"retry_index": {strconv.Itoa(retryIndex)},
	}
	var res TaskResult
	if _, err := c.do(ctx, "task", http.MethodGet, c.apiURL("/1/clouddrive/task", q), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AwaitTask polls a save task until it finishes. Fatal API errors abort
// immediately; exhausting the polling budget yields ErrTransferTimeout.
func (c *Client) AwaitTask(ctx context.Context, taskID string) (*TaskResult, error) {
	retryIndex := 0
	op := func() (*TaskResult, error) {
		res, err := c.pollTask(ctx, taskID, retryIndex)
		retryIndex++
		if err != nil {
			if IsFatal(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if res.Status != taskStatusDone {
			return nil, errTaskPending
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(pollBackOff(c.cfg.TaskPollInterval, true)),
		backoff.WithMaxTries(uint(c.cfg.TaskPollTries)),
	)
	if err != nil {
		if errors.Is(err, errTaskPending) {
			return nil, fmt.Errorf("%w: task %s", ErrTransferTimeout, taskID)
		}
		return nil, err
	}
	return res, nil
}

// CreateFolder creates a folder under parentFID and returns its fid.
func (c *Client) CreateFolder(ctx context.Context, parentFID, name string) (string, error) {
	var data struct {
		FID string `json:"fid"`
	}
	u := c.apiURL("/1/clouddrive/file", nil)
	_, err := c.do(ctx, "create folder", http.MethodPost, u, map[string]any{
		"pdir_fid":      parentFID,
		"file_name":     name,
		"dir_path":      "",
		"dir_init_lock": false,
	}, &data)
	if err != nil {
		return "", err
	}
	return data.FID, nil
}

// ListFolder lists one page of a drive folder.
func (c *Client) ListFolder(ctx context.Context, fid string, page, size int) ([]Entry, error) {
	q := url.Values{
		"pdir_fid":        {fid},
		"_page":           {strconv.Itoa(page)},
		"_size":           {strconv.Itoa(size)},
		"_fetch_total":    {"1"},
		"_fetch_sub_dirs": {"0"},
		"_sort":           {"file_type:asc,updated_at:desc"},
	}
	var data struct {
		List []Entry `json:"list"`
	}
	if _, err := c.do(ctx, "list folder", http.MethodGet, c.apiURL("/1/clouddrive/file/sort", q), nil, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// DeleteEntries removes entries from the drive.
func (c *Client) DeleteEntries(ctx context.Context, fids []string) error {
	if len(fids) == 0 {
		return nil
	}
	u := c.apiURL("/1/clouddrive/file/delete", nil)
	_, err := c.do(ctx, "delete", http.MethodPost, u, map[string]any{
		"action_type":  2,
		"filelist":     fids,
		"exclude_fids": []string{},
	}, nil)
	return err
}

// CreateShare starts a share task over the given entries and returns the
// task id.
func (c *Client) CreateShare(ctx context.Context, req ShareRequest) (string, error) {
	if req.URLType == 0 {
		req.URLType = 1
	}
	if req.ExpiredType == 0 {
		req.ExpiredType = 1
	}

	payload := map[string]any{
		"fid_list":     req.FIDs,
		"title":        req.Title,
		"url_type":     req.URLType,
		"expired_type": req.ExpiredType,
	}
	if req.Passcode != "" {
		payload["passcode"] = req.Passcode
	}

	var data struct {
		TaskID string `json:"task_id"`
	}
	u := c.apiURL("/1/clouddrive/share", nil)
	if _, err := c.do(ctx, "create share", http.MethodPost, u, payload, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", &APIError{Op: "create share", Message: "empty task_id", Kind: KindFatal}
	}
	return data.TaskID, nil
}

// AwaitShareID polls a share task until the share id is assigned.
func (c *Client) AwaitShareID(ctx context.Context, taskID string) (string, error) {
	retryIndex := 0
	op := func() (string, error) {
		res, err := c.pollTask(ctx, taskID, retryIndex)
		retryIndex++
		if err != nil {
			if IsFatal(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if res.Status != taskStatusDone || res.ShareID == "" {
			return "", errTaskPending
		}
		return res.ShareID, nil
	}

	shareID, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(pollBackOff(c.cfg.SharePollInterval, false)),
		backoff.WithMaxTries(uint(c.cfg.SharePollTries)),
	)
	if err != nil {
		if errors.Is(err, errTaskPending) {
			return "", fmt.Errorf("%w: share task %s", ErrTransferTimeout, taskID)
		}
		return "", err
	}
	return shareID, nil
}

// SharePassword finalizes a share and returns its public link.
func (c *Client) SharePassword(ctx context.Context, shareID string) (*ShareLink, error) {
	var link ShareLink
	u := c.apiURL("/1/clouddrive/share/password", nil)
	if _, err := c.do(ctx, "share password", http.MethodPost, u, map[string]string{
		"share_id": shareID,
	}, &link); err != nil {
		return nil, err
	}
	if link.ShareURL == "" {
		return nil, &APIError{Op: "share password", Message: "empty share_url", Kind: KindFatal}
	}
	return &link, nil
}

// AccountNickname fetches the account nickname. An empty nickname means
// the cookie is no longer valid.
func (c *Client) AccountNickname(ctx context.Context) (string, error) {
	u := c.cfg.AccountBase + "/account/info?fr=pc&platform=pc"
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", c.Cookie())
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Referer", "https://pan.quark.cn/")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("quark account info: %w", err)
	}
	raw, err := c.http.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("quark account info: %w", err)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Nickname string `json:"nickname"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("quark account info: decode response: %w", err)
	}
	if !body.Success || body.Data.Nickname == "" {
		return "", ErrInvalidCookie
	}
	return body.Data.Nickname, nil
}

var _ Drive = (*Client)(nil)
