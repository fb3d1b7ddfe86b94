package server

import (
	"io"
	"net/http"

	"github.com/wecom-tools/quarkbot/internal/wecom"
)

// maxCallbackBytes bounds the callback request body.
const maxCallbackBytes = 1 << 20

// handleVerifyURL answers the platform's GET verification handshake.
// Responses: 400 when a required parameter is missing, 403 on signature
// mismatch, 500 when the echo payload cannot be decrypted.
func (s *Server) handleVerifyURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signature := q.Get("msg_signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")
	echostr := q.Get("echostr")

	if signature == "" || timestamp == "" || nonce == "" || echostr == "" {
		http.Error(w, "missing verification parameter", http.StatusBadRequest)
		return
	}

	if !s.deps.Verifier.Verify(timestamp, nonce, echostr, signature) {
		http.Error(w, "signature mismatch", http.StatusForbidden)
		return
	}

	// With encryption enabled the echo payload must decrypt; the
	// plaintext goes back verbatim.
	reply := echostr
	if s.deps.Crypt != nil {
		plain, err := s.deps.Crypt.Decrypt(echostr)
		if err != nil {
			s.logger.Error("echo payload decryption failed", "error", err)
			http.Error(w, "decryption failed", http.StatusInternalServerError)
			return
		}
		reply = plain
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(reply))
}

// handleCallback accepts a message delivery. The ack stub is written
// before any real work; processing happens in the background so the
// platform never times out and redelivers.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	env := s.parseDelivery(w, r, body)
	if env == nil {
		return
	}

	s.ack(w)

	if !env.Actionable() {
		return
	}

	// One admission per (sender, payload) within the dedup window.
	payload := env.Content
	if env.MsgType == wecom.MsgTypeEvent {
		payload = "event:" + env.EventKey
	}
	if !s.deps.Guard.Admit(env.FromUserName, payload) {
		s.logger.Info("duplicate delivery dropped",
			"from", env.FromUserName, "msg_type", env.MsgType)
		return
	}

	go s.dispatcher.Dispatch(env)
}

// parseDelivery parses and, when encryption is configured, authenticates
// and decrypts the delivery. Returns nil after writing an error response.
func (s *Server) parseDelivery(w http.ResponseWriter, r *http.Request, body []byte) *wecom.Envelope {
	outer, err := wecom.ParseEnvelope(body)
	if err != nil {
		http.Error(w, "malformed callback", http.StatusBadRequest)
		return nil
	}

	if s.deps.Crypt == nil {
		return outer
	}

	if outer.Encrypt == "" {
		http.Error(w, "encrypted payload required", http.StatusBadRequest)
		return nil
	}

	q := r.URL.Query()
	signature := q.Get("msg_signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")
	if signature == "" || timestamp == "" || nonce == "" {
		http.Error(w, "missing signature parameter", http.StatusBadRequest)
		return nil
	}
	if !s.deps.Verifier.Verify(timestamp, nonce, outer.Encrypt, signature) {
		http.Error(w, "signature mismatch", http.StatusForbidden)
		return nil
	}

	plain, err := s.deps.Crypt.Decrypt(outer.Encrypt)
	if err != nil {
		s.logger.Error("callback decryption failed", "error", err)
		http.Error(w, "decryption failed", http.StatusInternalServerError)
		return nil
	}

	inner, err := wecom.ParseEnvelope([]byte(plain))
	if err != nil {
		http.Error(w, "malformed inner message", http.StatusBadRequest)
		return nil
	}
	return inner
}

// ack writes the passive reply stub.
func (s *Server) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wecom.AckXML))
}
