package protect

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	return key
}

func TestNoncesAreDeterministicPerField(t *testing.T) {
	if !bytes.Equal(TitleNonce("note-1"), TitleNonce("note-1")) {
		t.Error("TitleNonce() differs for the same id")
	}
	if bytes.Equal(TitleNonce("note-1"), TextNonce("note-1")) {
		t.Error("title and text nonces must differ")
	}
	if bytes.Equal(TitleNonce("note-1"), TitleNonce("note-2")) {
		t.Error("nonces for different ids must differ")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec()
	key := newKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "text", plaintext: []byte("<p>hello</p>")},
		{name: "empty", plaintext: []byte{}},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce := TextNonce("entity")
			ct, err := codec.Encrypt(key, nonce, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(tt.plaintext) > 0 && bytes.Contains(ct, tt.plaintext) {
				t.Error("Encrypt() leaked plaintext")
			}

			pt, err := codec.Decrypt(key, nonce, ct)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Errorf("Decrypt() = %v, want %v", pt, tt.plaintext)
			}
		})
	}
}

func TestDecryptWithWrongKeyOrNonce(t *testing.T) {
	codec := NewCodec()
	key := newKey(t)

	ct, err := codec.Encrypt(key, TitleNonce("a"), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := codec.Decrypt(newKey(t), TitleNonce("a"), ct); err != ErrInvalidCiphertext {
		t.Errorf("Decrypt() with wrong key error = %v, want %v", err, ErrInvalidCiphertext)
	}
	if _, err := codec.Decrypt(key, TextNonce("a"), ct); err != ErrInvalidCiphertext {
		t.Errorf("Decrypt() with wrong nonce error = %v, want %v", err, ErrInvalidCiphertext)
	}
}

func TestInvalidKey(t *testing.T) {
	codec := NewCodec()
	if _, err := codec.Encrypt([]byte("short"), TitleNonce("a"), []byte("x")); err != ErrInvalidKey {
		t.Errorf("Encrypt() error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestStringHelpers(t *testing.T) {
	codec := NewCodec()
	key := newKey(t)

	enc, err := EncryptString(codec, key, TitleNonce("n"), "My title")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	if enc == "My title" {
		t.Fatal("EncryptString() returned plaintext")
	}

	dec, err := DecryptString(codec, key, TitleNonce("n"), enc)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if dec != "My title" {
		t.Errorf("DecryptString() = %q, want %q", dec, "My title")
	}

	if _, err := DecryptString(codec, key, TitleNonce("n"), "%%%not base64"); err != ErrInvalidCiphertext {
		t.Errorf("DecryptString() error = %v, want %v", err, ErrInvalidCiphertext)
	}
}

func TestReusedNonceDoesNotShareKeystream(t *testing.T) {
	codec := NewCodec()
	key := newKey(t)
	nonce := TextNonce("note-1")

	p1 := []byte("password: secret")
	p2 := []byte("password: hunter")

	c1, err := codec.Encrypt(key, nonce, p1)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	c2, err := codec.Encrypt(key, nonce, p2)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if len(c1) != len(c2) || len(c1) < len(p1) {
		t.Fatalf("unexpected ciphertext lengths %d and %d", len(c1), len(c2))
	}

	// the tag may sit before or after the body; try every alignment
	for offset := 0; offset+len(p1) <= len(c1); offset++ {
		recovered := make([]byte, len(p1))
		for i := range p1 {
			recovered[i] = c1[offset+i] ^ c2[offset+i] ^ p1[i]
		}
		if bytes.Equal(recovered, p2) {
			t.Fatalf("second plaintext recovered from ciphertexts at offset %d", offset)
		}
	}

	again, err := codec.Encrypt(key, nonce, p1)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.Equal(again, c1) {
		t.Error("Encrypt() is not deterministic for the same field and value")
	}
}

func TestEncryptRejectsWrongNonceLength(t *testing.T) {
	codec := NewCodec()
	if _, err := codec.Encrypt(newKey(t), []byte("short"), []byte("x")); err == nil {
		t.Error("Encrypt() with a short nonce should fail")
	}
}
