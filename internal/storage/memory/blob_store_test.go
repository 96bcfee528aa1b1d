package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "github-com.png", "image/png", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://github-com.png" {
		t.Fatalf("unexpected uri %s", uri)
	}

	got, ok := store.Get("github-com.png")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	got[0] = 'C'
	again, _ := store.Get("github-com.png")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	if _, ok := NewBlobStore().Get("nope"); ok {
		t.Fatal("expected missing object")
	}
}
