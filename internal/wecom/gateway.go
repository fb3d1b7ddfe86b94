package wecom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/wecom-tools/quarkbot/internal/platform/cache"
	"github.com/wecom-tools/quarkbot/internal/platform/httpclient"
	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
)

var ErrNotConfigured = errors.New("messaging gateway not configured")

// accessTokenKey is the cache key for the application access token.
const accessTokenKey = "wecom:access_token"

// tokenSafetyMargin is subtracted from the reported expiry so a token is
// never used right at its deadline.
const tokenSafetyMargin = 5 * time.Minute

// GatewayConfig holds the application credentials for the messaging API.
type GatewayConfig struct {
	CorpID  string
	AgentID string
	Secret  string
	APIBase string
}

// Gateway sends messages and manages the app menu through the WeCom API.
// The access token is cached and refreshed on expiry.
type Gateway struct {
	cfg    GatewayConfig
	http   *httpclient.Client
	cache  cache.Cache
	logger *slog.Logger
}

// NewGateway creates a messaging gateway.
func NewGateway(cfg GatewayConfig, httpc *httpclient.Client, c cache.Cache, logger *slog.Logger) *Gateway {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://qyapi.weixin.qq.com"
	}
	return &Gateway{
		cfg:    cfg,
		http:   httpc,
		cache:  c,
		logger: logutil.NoopIfNil(logger),
	}
}

// Configured reports whether credentials for outbound messaging are present.
func (g *Gateway) Configured() bool {
	return g.cfg.CorpID != "" && g.cfg.AgentID != "" && g.cfg.Secret != ""
}

// joinURL joins the API base and a path with exactly one slash.
func (g *Gateway) joinURL(path string) string {
	return strings.TrimRight(g.cfg.APIBase, "/") + "/" + strings.TrimLeft(path, "/")
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a valid access token, fetching a fresh one when the
// cached token is missing, expired, or force is set.
func (g *Gateway) AccessToken(ctx context.Context, force bool) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}

	if !force {
		if val, err := g.cache.Get(ctx, accessTokenKey); err == nil && len(val) > 0 {
			return string(val), nil
		}
	}

	u := g.joinURL("/cgi-bin/gettoken") + "?" + url.Values{
		"corpid":     {g.cfg.CorpID},
		"corpsecret": {g.cfg.Secret},
	}.Encode()

	var tr tokenResponse
	if err := g.http.GetJSON(ctx, u, &tr); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	if tr.ErrCode != 0 || tr.AccessToken == "" {
		return "", fmt.Errorf("fetch access token: errcode=%d errmsg=%s", tr.ErrCode, tr.ErrMsg)
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSafetyMargin
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := g.cache.Set(ctx, accessTokenKey, []byte(tr.AccessToken), ttl); err != nil {
		g.logger.Warn("failed to cache access token", "error", err)
	}

	return tr.AccessToken, nil
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// isTokenError reports whether the errcode means the token is stale.
func isTokenError(code int) bool {
	return code == 40014 || code == 42001
}

// call posts a JSON payload to an access-token endpoint, refreshing the
// token and retrying once when the API reports it stale.
func (g *Gateway) call(ctx context.Context, path string, extraQuery url.Values, payload any) error {
	force := false
	for attempt := 0; attempt < 2; attempt++ {
		token, err := g.AccessToken(ctx, force)
		if err != nil {
			return err
		}

		q := url.Values{"access_token": {token}}
		for k, vs := range extraQuery {
			q[k] = vs
		}

		var resp apiResponse
		if err := g.http.PostJSON(ctx, g.joinURL(path)+"?"+q.Encode(), payload, &resp); err != nil {
			return err
		}
		if resp.ErrCode == 0 {
			return nil
		}
		if isTokenError(resp.ErrCode) && attempt == 0 {
			g.logger.Info("access token stale, refreshing", "errcode", resp.ErrCode)
			force = true
			continue
		}
		return fmt.Errorf("wecom api %s: errcode=%d errmsg=%s", path, resp.ErrCode, resp.ErrMsg)
	}
	return nil
}

// SendText sends a plain text message to a user.
func (g *Gateway) SendText(ctx context.Context, toUser, content string) error {
	return g.call(ctx, "/cgi-bin/message/send", nil, map[string]any{
		"touser":  toUser,
		"msgtype": "text",
		"agentid": g.cfg.AgentID,
		"text":    map[string]string{"content": content},
	})
}

// SendMarkdown sends a markdown message to a user.
func (g *Gateway) SendMarkdown(ctx context.Context, toUser, content string) error {
	return g.call(ctx, "/cgi-bin/message/send", nil, map[string]any{
		"touser":   toUser,
		"msgtype":  "markdown",
		"agentid":  g.cfg.AgentID,
		"markdown": map[string]string{"content": content},
	})
}

// Article is one card in a news message.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	PicURL      string `json:"picurl,omitempty"`
}

// SendNews sends a card (news) message to a user.
func (g *Gateway) SendNews(ctx context.Context, toUser string, articles []Article) error {
	return g.call(ctx, "/cgi-bin/message/send", nil, map[string]any{
		"touser":  toUser,
		"msgtype": "news",
		"agentid": g.cfg.AgentID,
		"news":    map[string]any{"articles": articles},
	})
}

// templated sends a markdown message with a status emoji header and a
// timestamp footer.
func (g *Gateway) templated(ctx context.Context, toUser, emoji, title, content string) error {
	body := fmt.Sprintf("## %s %s\n%s\n> Time: %s",
		emoji, title, content, time.Now().Format("2006-01-02 15:04:05"))
	return g.SendMarkdown(ctx, toUser, body)
}

// SendSuccess sends a success-styled markdown message.
func (g *Gateway) SendSuccess(ctx context.Context, toUser, title, content string) error {
	return g.templated(ctx, toUser, "✅", title, content)
}

// SendError sends an error-styled markdown message.
func (g *Gateway) SendError(ctx context.Context, toUser, title, content string) error {
	return g.templated(ctx, toUser, "❌", title, content)
}

// SendWarning sends a warning-styled markdown message.
func (g *Gateway) SendWarning(ctx context.Context, toUser, title, content string) error {
	return g.templated(ctx, toUser, "⚠️", title, content)
}

// SendInfo sends an info-styled markdown message.
func (g *Gateway) SendInfo(ctx context.Context, toUser, title, content string) error {
	return g.templated(ctx, toUser, "ℹ️", title, content)
}

// MenuButton is one entry of the application menu.
type MenuButton struct {
	Type      string       `json:"type,omitempty"`
	Name      string       `json:"name"`
	Key       string       `json:"key,omitempty"`
	SubButton []MenuButton `json:"sub_button,omitempty"`
}

// CreateMenu replaces the application menu.
func (g *Gateway) CreateMenu(ctx context.Context, buttons []MenuButton) error {
	return g.call(ctx, "/cgi-bin/menu/create",
		url.Values{"agentid": {g.cfg.AgentID}},
		map[string]any{"button": buttons},
	)
}

// DeleteMenu removes the application menu.
func (g *Gateway) DeleteMenu(ctx context.Context) error {
	token, err := g.AccessToken(ctx, false)
	if err != nil {
		return err
	}
	q := url.Values{"access_token": {token}, "agentid": {g.cfg.AgentID}}

	var resp apiResponse
	if err := g.http.GetJSON(ctx, g.joinURL("/cgi-bin/menu/delete")+"?"+q.Encode(), &resp); err != nil {
		return err
	}
	if resp.ErrCode != 0 {
		return fmt.Errorf("wecom api menu/delete: errcode=%d errmsg=%s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}
