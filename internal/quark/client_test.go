package quark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/wecom-tools/quarkbot/internal/platform/httpclient"
	"github.com/wecom-tools/quarkbot/internal/quark"
)

func newClient(t *testing.T, handler http.Handler) *quark.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return quark.NewClient(quark.Config{
		APIBase:           srv.URL,
		AccountBase:       srv.URL,
		Cookie:            "__pus=test",
		TaskPollTries:     3,
		TaskPollInterval:  time.Millisecond,
		SharePollTries:    3,
		SharePollInterval: time.Millisecond,
	}, httpclient.New(httpclient.Options{Timeout: 5 * time.Second}), nil)
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any, md map[string]int) {
	body := map[string]any{
		"status":  200,
		"code":    code,
		"message": message,
		"data":    data,
	}
	if md != nil {
		body["metadata"] = md
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_ShareToken(t *testing.T) {
	var gotBody map[string]string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/clouddrive/share/sharepage/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("pr") != "ucpro" || r.URL.Query().Get("fr") != "pc" {
			t.Error("standard query parameters missing")
		}
		if r.Header.Get("Cookie") != "__pus=test" {
			t.Errorf("cookie header = %q", r.Header.Get("Cookie"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, 0, "ok", map[string]string{"stoken": "st-1"}, nil)
	}))

	stoken, err := c.ShareToken(context.Background(), "abc123", "xy12")
	if err != nil {
		t.Fatalf("ShareToken failed: %v", err)
	}
	if stoken != "st-1" {
		t.Errorf("stoken = %q, want st-1", stoken)
	}
	if gotBody["pwd_id"] != "abc123" || gotBody["passcode"] != "xy12" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestClient_ShareDetailPagination(t *testing.T) {
	// 3 items served in pages of 2.
	items := []map[string]any{
		{"fid": "f1", "file_name": "a", "dir": false, "size": 10},
		{"fid": "f2", "file_name": "b", "dir": true},
		{"fid": "f3", "file_name": "c", "dir": false, "size": 30},
	}

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("_page"))
		start := (page - 1) * 2
		end := start + 2
		if end > len(items) {
			end = len(items)
		}
		writeEnvelope(w, 0, "ok", map[string]any{
			"is_owner": 0,
			"list":     items[start:end],
		}, map[string]int{
			"_total": len(items),
			"_size":  2,
			"_count": end - start,
			"_page":  page,
		})
	}))

	detail, err := c.ShareDetail(context.Background(), "abc123", "st-1")
	if err != nil {
		t.Fatalf("ShareDetail failed: %v", err)
	}
	if detail.IsOwner {
		t.Error("IsOwner should be false")
	}
	if len(detail.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(detail.Items))
	}
	if detail.Items[2].FID != "f3" {
		t.Errorf("last item = %+v", detail.Items[2])
	}
}

func TestClient_FatalErrorClassification(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 32003, "capacity limit exceeded", nil, nil)
	}))

	_, err := c.ShareToken(context.Background(), "abc123", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *quark.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.Code != 32003 || apiErr.Kind != quark.KindFatal {
		t.Errorf("got code=%d kind=%v, want 32003 fatal", apiErr.Code, apiErr.Kind)
	}
	if !quark.IsFatal(err) {
		t.Error("IsFatal should report true")
	}
}

func TestClient_InvalidCookieStatus(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.ShareToken(context.Background(), "abc123", "")
	if !errors.Is(err, quark.ErrInvalidCookie) {
		t.Errorf("got %v, want ErrInvalidCookie", err)
	}
}

func TestClient_AwaitTaskBudgetExhausted(t *testing.T) {
	polls := 0
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		writeEnvelope(w, 0, "ok", map[string]any{"task_id": "t1", "status": 1}, nil)
	}))

	_, err := c.AwaitTask(context.Background(), "t1")
	if !errors.Is(err, quark.ErrTransferTimeout) {
		t.Fatalf("got %v, want ErrTransferTimeout", err)
	}
	if polls != 3 {
		t.Errorf("polled %d times, want 3 (the configured budget)", polls)
	}
}

func TestClient_AwaitTaskSuccess(t *testing.T) {
	polls := 0
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := 1
		if polls >= 2 {
			status = 2
		}
		writeEnvelope(w, 0, "ok", map[string]any{
			"task_id": "t1",
			"status":  status,
			"save_as": map[string]any{
				"to_pdir_fid":      "dest",
				"save_as_top_fids": []string{"n1", "n2"},
			},
		}, nil)
	}))

	res, err := c.AwaitTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("AwaitTask failed: %v", err)
	}
	if polls != 2 {
		t.Errorf("polled %d times, want 2", polls)
	}
	if len(res.SaveAs.TopFIDs) != 2 || res.SaveAs.ToPdirFID != "dest" {
		t.Errorf("save_as = %+v", res.SaveAs)
	}
}

func TestClient_AwaitTaskFatalAborts(t *testing.T) {
	polls := 0
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		writeEnvelope(w, 41013, "file gone", nil, nil)
	}))

	_, err := c.AwaitTask(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, quark.ErrTransferTimeout) {
		t.Error("fatal error reported as a timeout")
	}
	if polls != 1 {
		t.Errorf("polled %d times after a fatal error, want 1", polls)
	}
}

func TestClient_AccountNickname(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"nickname": "测试用户"},
		})
	}))

	nick, err := c.AccountNickname(context.Background())
	if err != nil {
		t.Fatalf("AccountNickname failed: %v", err)
	}
	if nick != "测试用户" {
		t.Errorf("nickname = %q", nick)
	}
}

func TestClient_AccountNicknameInvalidCookie(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))

	if _, err := c.AccountNickname(context.Background()); !errors.Is(err, quark.ErrInvalidCookie) {
		t.Errorf("got %v, want ErrInvalidCookie", err)
	}
}

func TestClient_SetCookie(t *testing.T) {
	c := quark.NewClient(quark.Config{Cookie: "old"}, httpclient.New(httpclient.Options{}), nil)
	if c.Cookie() != "old" {
		t.Fatalf("Cookie() = %q", c.Cookie())
	}
	c.SetCookie("new")
	if c.Cookie() != "new" {
		t.Errorf("Cookie() after SetCookie = %q", c.Cookie())
	}
}
