package wecom

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
)

var (
	ErrInvalidKey     = errors.New("invalid encoding aes key")
	ErrInvalidPadding = errors.New("invalid message padding")
	ErrInvalidMessage = errors.New("invalid encrypted message")
	ErrCorpIDMismatch = errors.New("corp id mismatch")
)

// MsgCrypt encrypts and decrypts callback payloads with AES-256-CBC.
//
// The 43-character EncodingAESKey is base64-decoded (with one '=' of
// padding appended) into the 32-byte AES key; the IV is its first 16
// bytes. Plaintext layout: 16 random bytes, a 4-byte big-endian message
// length, the message, then the corp id.
type MsgCrypt struct {
	key    []byte
	corpID string
	logger *slog.Logger
}

// NewMsgCrypt validates the encoding key and returns the codec.
func NewMsgCrypt(encodingAESKey, corpID string, logger *slog.Logger) (*MsgCrypt, error) {
	if len(encodingAESKey) != 43 {
		return nil, fmt.Errorf("%w: want 43 characters, got %d", ErrInvalidKey, len(encodingAESKey))
	}

	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: decoded key is %d bytes, want 32", ErrInvalidKey, len(key))
	}

	return &MsgCrypt{
		key:    key,
		corpID: corpID,
		logger: logutil.NoopIfNil(logger),
	}, nil
}

// Decrypt decodes and decrypts a base64 ciphertext and returns the
// embedded message. The trailing corp id must match the configured one.
func (m *MsgCrypt) Decrypt(ciphertextB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrInvalidMessage, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrInvalidMessage, len(ciphertext))
	}

	block, err := aes.NewCipher(m.key)
	if err != nil {
		return "", err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, m.key[:aes.BlockSize]).CryptBlocks(plain, ciphertext)

	plain, err = unpadPKCS7(plain)
	if err != nil {
		return "", err
	}
	if len(plain) < 20 {
		return "", fmt.Errorf("%w: plaintext too short", ErrInvalidMessage)
	}

	// Skip the 16 random bytes, then read the message length.
	buf := plain[16:]
	msgLen := binary.BigEndian.Uint32(buf[:4])
	rest := buf[4:]

	if int(msgLen) > len(rest) {
		// Some client libraries wrote the length little-endian. Fall back
		// when the big-endian reading cannot be right.
		leLen := binary.LittleEndian.Uint32(buf[:4])
		m.logger.Warn("message length not big-endian, trying little-endian",
			"be_len", msgLen,
			"le_len", leLen,
			"available", len(rest),
		)
		if int(leLen) > len(rest) {
			return "", fmt.Errorf("%w: message length %d exceeds payload %d", ErrInvalidMessage, msgLen, len(rest))
		}
		msgLen = leLen
	}

	msg := rest[:msgLen]
	gotCorpID := string(rest[msgLen:])
	if gotCorpID != m.corpID {
		return "", fmt.Errorf("%w: got %q", ErrCorpIDMismatch, gotCorpID)
	}

	return string(msg), nil
}

// Encrypt builds the standard plaintext layout around msg, encrypts it
// and returns the base64 ciphertext.
func (m *MsgCrypt) Encrypt(msg string) (string, error) {
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg)))

	plain := make([]byte, 0, 20+len(msg)+len(m.corpID))
	plain = append(plain, random...)
	plain = append(plain, lenBuf[:]...)
	plain = append(plain, msg...)
	plain = append(plain, m.corpID...)
	plain = padPKCS7(plain, aes.BlockSize)

	block, err := aes.NewCipher(m.key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, m.key[:aes.BlockSize]).CryptBlocks(ciphertext, plain)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	for i := 0; i < pad; i++ {
		data = append(data, byte(pad))
	}
	return data
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: pad byte %d", ErrInvalidPadding, pad)
	}
	return data[:len(data)-pad], nil
}
