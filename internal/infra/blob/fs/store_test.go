package fs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"crmcore/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	info, err := s.Put(ctx, "avatars/1.png", bytes.NewReader([]byte("png-bytes")), core.PutOptions{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size != 9 {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, err := s.Put(ctx, "avatars/1.png", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}

	got, body, err := s.Get(ctx, "avatars/1.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "png-bytes" || got.ContentType != "image/png" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}

	infos, err := s.List(ctx, "avatars/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %+v", err, infos)
	}

	ok, err := s.Delete(ctx, "avatars/1.png")
	if err != nil || !ok {
		t.Fatalf("delete: %v ok=%v", err, ok)
	}
}

func TestStoreRejectsTraversalKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/absolute"} {
		if _, err := s.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}
