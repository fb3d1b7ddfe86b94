package wecom_test

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/wecom-tools/quarkbot/internal/wecom"
)

// testAESKey decodes (with one '=' appended) to the bytes 0x01..0x20.
const testAESKey = "AQIDBAUGBwgJCgsMDQ4PEBESExQVFhcYGRobHB0eHyA"

func TestNewMsgCrypt_KeyValidation(t *testing.T) {
	if _, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	if _, err := wecom.NewMsgCrypt("tooshort", "corp1", nil); !errors.Is(err, wecom.ErrInvalidKey) {
		t.Errorf("short key: got %v, want ErrInvalidKey", err)
	}
	bad := strings.Repeat("!", 43)
	if _, err := wecom.NewMsgCrypt(bad, "corp1", nil); !errors.Is(err, wecom.ErrInvalidKey) {
		t.Errorf("non-base64 key: got %v, want ErrInvalidKey", err)
	}
}

func TestMsgCrypt_RoundTrip(t *testing.T) {
	m, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"", "hi", "<xml><Content>转存</Content></xml>", strings.Repeat("x", 300)} {
		ct, err := m.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", msg, err)
		}
		got, err := m.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt failed for %q: %v", msg, err)
		}
		if got != msg {
			t.Errorf("round trip: got %q, want %q", got, msg)
		}
	}
}

func TestMsgCrypt_CorpIDMismatch(t *testing.T) {
	sender, err := wecom.NewMsgCrypt(testAESKey, "corp-other", nil)
	if err != nil {
		t.Fatal(err)
	}
	receiver, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil)
	if err != nil {
		t.Fatal(err)
	}

	ct, err := sender.Encrypt("hello")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.Decrypt(ct); !errors.Is(err, wecom.ErrCorpIDMismatch) {
		t.Errorf("got %v, want ErrCorpIDMismatch", err)
	}
}

func TestMsgCrypt_InvalidCiphertext(t *testing.T) {
	m, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Decrypt("%%%not-base64%%%"); !errors.Is(err, wecom.ErrInvalidMessage) {
		t.Errorf("bad base64: got %v, want ErrInvalidMessage", err)
	}
	// 8 bytes is not a whole AES block.
	short := base64.StdEncoding.EncodeToString([]byte("12345678"))
	if _, err := m.Decrypt(short); !errors.Is(err, wecom.ErrInvalidMessage) {
		t.Errorf("partial block: got %v, want ErrInvalidMessage", err)
	}
}

func TestMsgCrypt_BadPadding(t *testing.T) {
	m, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil)
	if err != nil {
		t.Fatal(err)
	}

	// A block of zeros decrypts to garbage whose final pad byte is
	// almost certainly invalid; at minimum pad=0 is.
	ct := encryptRaw(t, make([]byte, 32))
	if _, err := m.Decrypt(ct); err == nil {
		t.Error("expected an error for garbage ciphertext")
	}

	// Valid encryption with the pad byte forced to 0 after the fact is
	// not constructible without the key, so instead hand-build a padded
	// plaintext with pad byte 17 (> block size).
	plain := make([]byte, 32)
	plain[31] = 17
	if _, err := m.Decrypt(encryptRaw(t, plain)); !errors.Is(err, wecom.ErrInvalidPadding) {
		t.Errorf("pad byte 17: got %v, want ErrInvalidPadding", err)
	}
}

func TestMsgCrypt_LittleEndianLengthFallback(t *testing.T) {
	m, err := wecom.NewMsgCrypt(testAESKey, "corp1", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Build a plaintext whose length field is little-endian, as some
	// sender libraries wrote it. Big-endian reading of the field is
	// huge, so the decoder must fall back.
	msg := "hello"
	corpID := "corp1"
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))

	plain := make([]byte, 16)
	plain = append(plain, lenBuf[:]...)
	plain = append(plain, msg...)
	plain = append(plain, corpID...)
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	for i := 0; i < pad; i++ {
		plain = append(plain, byte(pad))
	}

	got, err := m.Decrypt(encryptRaw(t, plain))
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != msg {
		t.Errorf("got %q, want %q", got, msg)
	}
}

// encryptRaw CBC-encrypts an already padded plaintext with the test key.
func encryptRaw(t *testing.T, plain []byte) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(testAESKey + "=")
	if err != nil {
		t.Fatal(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out)
}
