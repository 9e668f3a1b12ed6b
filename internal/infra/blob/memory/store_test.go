package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"vaxtrax/internal/blob/core"
)

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	md := map[string]string{"k": "v"}
	if _, err := s.Put(ctx, "k1", bytes.NewReader([]byte("data")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["k"] = "changed"
	info, rc, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "data" || info.Metadata["k"] != "v" {
		t.Fatalf("unexpected object %q %+v", body, info)
	}
	info.Metadata["k"] = "mutated"
	again, _, _ := s.Get(ctx, "k1")
	if again.Metadata["k"] != "v" {
		t.Fatalf("metadata leaked across calls")
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	if ok, _ := s.Delete(ctx, "nope"); ok {
		t.Fatalf("expected false for missing key")
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
