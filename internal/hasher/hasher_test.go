package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashReaderMatchesStdlib(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 1000)
	want := sha256.Sum256(data)

	got, n, err := HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("n = %d, want %d", n, len(data))
	}
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("hash = %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestHashReaderDeterministic(t *testing.T) {
	data := []byte("hello world")
	h1, _, _ := HashReader(bytes.NewReader(data))
	h2, _, _ := HashReader(bytes.NewReader(data))
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
}

func TestHashURLMatchesHashOfURLString(t *testing.T) {
	url := "https://tracker.example.com/attachments/123/a.bin"
	urlHash := HashURL(url)
	contentHash, _, _ := HashReader(strings.NewReader(url))
	if urlHash != contentHash {
		t.Fatalf("expected HashURL to match hashing the URL string as content")
	}

	other, _, _ := HashReader(bytes.NewReader([]byte{0x00, 0x01, 0x02}))
	if urlHash == other {
		t.Errorf("url hash collided with unrelated content hash")
	}
}

func TestStreamingHasherSkipsEmptyChunks(t *testing.T) {
	sh := New()
	sh.Write([]byte("abc"))
	sh.Write(nil)
	sh.Write([]byte(""))
	sh.Write([]byte("def"))

	want, _, _ := HashReader(strings.NewReader("abcdef"))
	if sh.Sum() != want {
		t.Errorf("got %s, want %s", sh.Sum(), want)
	}
}
