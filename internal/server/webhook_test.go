package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wecom-tools/quarkbot/internal/config"
	"github.com/wecom-tools/quarkbot/internal/conversation"
	"github.com/wecom-tools/quarkbot/internal/dedup"
	"github.com/wecom-tools/quarkbot/internal/platform/cache/memory"
	"github.com/wecom-tools/quarkbot/internal/platform/httpclient"
	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/search"
	"github.com/wecom-tools/quarkbot/internal/server"
	"github.com/wecom-tools/quarkbot/internal/transfer"
	"github.com/wecom-tools/quarkbot/internal/wecom"
)

const (
	testToken  = "tok"
	testAESKey = "AQIDBAUGBwgJCgsMDQ4PEBESExQVFhcYGRobHB0eHyA"
	testCorpID = "corp1"
)

// idleDrive satisfies quark.Drive; webhook tests never reach the drive.
type idleDrive struct{ quark.Drive }

func (idleDrive) AccountNickname(ctx context.Context) (string, error) { return "tester", nil }

func newTestServer(t *testing.T, crypt *wecom.MsgCrypt) *httptest.Server {
	t.Helper()

	// The gateway points at a stub so background dispatch cannot reach
	// out of the test.
	apiStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":0,"access_token":"t","expires_in":7200}`))
	}))
	t.Cleanup(apiStub.Close)

	gateway := wecom.NewGateway(wecom.GatewayConfig{
		CorpID: testCorpID, AgentID: "1", Secret: "s", APIBase: apiStub.URL,
	}, httpclient.New(httpclient.Options{Timeout: time.Second}),
		memory.New(time.Minute, 0), nil)

	drive := idleDrive{}
	srv, err := server.New(config.Default(), nil, &server.Deps{
		Verifier:     wecom.NewVerifier(testToken, nil),
		Gateway:      gateway,
		Guard:        dedup.New(time.Minute),
		States:       conversation.NewStore(),
		Orchestrator: transfer.New(drive, nil, nil, transfer.Options{}, nil),
		Search:       search.New(drive, 1, nil),
		Drive:        drive,
		Crypt:        crypt,
	})
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func verifyURL(base, echostr string) string {
	ts := "1700000000"
	nonce := "n1"
	sig := wecom.Signature(testToken, ts, nonce, echostr)
	return base + "/wecom/callback?" + url.Values{
		"msg_signature": {sig},
		"timestamp":     {ts},
		"nonce":         {nonce},
		"echostr":       {echostr},
	}.Encode()
}

func TestVerifyURL_Plaintext(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(verifyURL(ts.URL, "echo-me"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if got := string(buf[:n]); got != "echo-me" {
		t.Errorf("body = %q, want echo-me", got)
	}
}

func TestVerifyURL_Encrypted(t *testing.T) {
	crypt, err := wecom.NewMsgCrypt(testAESKey, testCorpID, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, crypt)

	cipher, err := crypt.Encrypt("decrypted-echo")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(verifyURL(ts.URL, cipher))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if got := string(buf[:n]); got != "decrypted-echo" {
		t.Errorf("body = %q, want the decrypted echo", got)
	}
}

func TestVerifyURL_MissingParams(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/wecom/callback?timestamp=1&nonce=2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestVerifyURL_BadSignature(t *testing.T) {
	ts := newTestServer(t, nil)

	u := ts.URL + "/wecom/callback?" + url.Values{
		"msg_signature": {"deadbeef"},
		"timestamp":     {"1700000000"},
		"nonce":         {"n1"},
		"echostr":       {"echo-me"},
	}.Encode()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestCallback_PlaintextAck(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `<xml><FromUserName><![CDATA[zhang]]></FromUserName><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[help]]></Content></xml>`
	resp, err := http.Post(ts.URL+"/wecom/callback", "application/xml", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	if got := string(buf[:n]); got != wecom.AckXML {
		t.Errorf("body = %q, want the ack stub", got)
	}
}

func TestCallback_EncryptedAck(t *testing.T) {
	crypt, err := wecom.NewMsgCrypt(testAESKey, testCorpID, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, crypt)

	inner := `<xml><FromUserName><![CDATA[zhang]]></FromUserName><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[help]]></Content></xml>`
	cipher, err := crypt.Encrypt(inner)
	if err != nil {
		t.Fatal(err)
	}

	tsParam := "1700000000"
	nonce := "n1"
	sig := wecom.Signature(testToken, tsParam, nonce, cipher)
	u := ts.URL + "/wecom/callback?" + url.Values{
		"msg_signature": {sig},
		"timestamp":     {tsParam},
		"nonce":         {nonce},
	}.Encode()

	outer := `<xml><Encrypt><![CDATA[` + cipher + `]]></Encrypt></xml>`
	resp, err := http.Post(u, "application/xml", strings.NewReader(outer))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCallback_EncryptedRequiresSignature(t *testing.T) {
	crypt, err := wecom.NewMsgCrypt(testAESKey, testCorpID, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, crypt)

	cipher, err := crypt.Encrypt("<xml></xml>")
	if err != nil {
		t.Fatal(err)
	}
	outer := `<xml><Encrypt><![CDATA[` + cipher + `]]></Encrypt></xml>`

	// No signature parameters at all.
	resp, err := http.Post(ts.URL+"/wecom/callback", "application/xml", strings.NewReader(outer))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	// A wrong signature.
	u := ts.URL + "/wecom/callback?" + url.Values{
		"msg_signature": {"deadbeef"},
		"timestamp":     {"1"},
		"nonce":         {"2"},
	}.Encode()
	resp, err = http.Post(u, "application/xml", strings.NewReader(outer))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestCallback_MalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/wecom/callback", "application/xml", strings.NewReader("<xml><unclosed>"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
