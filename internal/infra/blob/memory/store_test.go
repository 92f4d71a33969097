package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"crmcore/internal/blob/core"
)

func TestStorePutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	info, err := s.Put(ctx, "avatars/1", bytes.NewReader([]byte("png")), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"user": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || info.ContentType != "image/png" {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, err := s.Put(ctx, "avatars/1", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}

	got, body, err := s.Get(ctx, "avatars/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "png" || got.Metadata["user"] != "1" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}

	head, err := s.Head(ctx, "avatars/1")
	if err != nil || head.Key != "avatars/1" {
		t.Fatalf("head: %v %+v", err, head)
	}

	ok, err := s.Delete(ctx, "avatars/1")
	if err != nil || !ok {
		t.Fatalf("delete: %v ok=%v", err, ok)
	}
	ok, err = s.Delete(ctx, "avatars/1")
	if err != nil || ok {
		t.Fatalf("expected second delete to report missing")
	}
}

func TestStoreListByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, key := range []string{"avatars/2", "avatars/1", "exports/a"} {
		if _, err := s.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "avatars/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "avatars/1" || infos[1].Key != "avatars/2" {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestStorePresignUnsupported(t *testing.T) {
	s := New()
	if _, err := s.PresignURL(context.Background(), "x", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}
