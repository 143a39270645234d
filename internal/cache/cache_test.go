package cache

import (
	"bytes"
	"errors"
	"testing"

	"go.etcd.io/bbolt"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)
	payload := []byte("<html>lots of steps</html>")
	meta := Meta{
		Job:         "deploy/webapp",
		BuildID:     123,
		StartTimeMs: 1700000000000,
		Parameters:  map[string]string{"GIT_REVISION": "abc123"},
	}
	if err := c.Put(payload, meta); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, gotMeta, err := c.Get(Key("deploy/webapp", 123))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if gotMeta.StartTimeMs != 1700000000000 {
		t.Errorf("startTimeMs = %d", gotMeta.StartTimeMs)
	}
	if gotMeta.Parameters["GIT_REVISION"] != "abc123" {
		t.Errorf("parameters = %v", gotMeta.Parameters)
	}
	if gotMeta.Size != len(payload) {
		t.Errorf("size = %d, want %d", gotMeta.Size, len(payload))
	}
	if len(gotMeta.Sum) != 64 {
		t.Errorf("sum = %q, want 32-byte hex digest", gotMeta.Sum)
	}
	if gotMeta.FetchedAt.IsZero() {
		t.Error("fetchedAt not set")
	}
}

func TestGetMissing(t *testing.T) {
	c := openTestCache(t)
	if _, _, err := c.Get(Key("deploy", 1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestHas(t *testing.T) {
	c := openTestCache(t)
	if c.Has(Key("deploy", 1)) {
		t.Error("Has on empty cache")
	}
	if err := c.Put([]byte("page"), Meta{Job: "deploy", BuildID: 1}); err != nil {
		t.Fatal(err)
	}
	if !c.Has(Key("deploy", 1)) {
		t.Error("Has after Put = false")
	}
}

func TestListOrder(t *testing.T) {
	c := openTestCache(t)
	for _, m := range []Meta{
		{Job: "webapp", BuildID: 10},
		{Job: "deploy", BuildID: 124},
		{Job: "webapp", BuildID: 9},
		{Job: "deploy", BuildID: 123},
	} {
		if err := c.Put([]byte("page"), m); err != nil {
			t.Fatal(err)
		}
	}
	metas, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, m := range metas {
		got = append(got, m.Key())
	}
	want := []string{"deploy:123", "deploy:124", "webapp:9", "webapp:10"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q (build ids must sort numerically)", i, got[i], want[i])
		}
	}
}

func TestDelete(t *testing.T) {
	c := openTestCache(t)
	if err := c.Put([]byte("page"), Meta{Job: "deploy", BuildID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(Key("deploy", 1)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c.Has(Key("deploy", 1)) {
		t.Error("build still cached after Delete")
	}
	if err := c.Delete(Key("deploy", 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	c := openTestCache(t)
	for i := 1; i <= 3; i++ {
		if err := c.Put([]byte("page"), Meta{Job: "deploy", BuildID: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	metas, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("cache still holds %d builds after Clear", len(metas))
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	c := openTestCache(t)
	if err := c.Put([]byte("original payload"), Meta{Job: "deploy", BuildID: 1}); err != nil {
		t.Fatal(err)
	}

	// Swap in a differently-compressed payload behind the checksum's back.
	other, err := compress([]byte("tampered payload"))
	if err != nil {
		t.Fatal(err)
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BucketPayloads).Put([]byte(Key("deploy", 1)), other)
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Get(Key("deploy", 1)); err == nil {
		t.Fatal("Get returned tampered payload without error")
	}
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Put([]byte("page"), Meta{Job: "deploy", BuildID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	payload, _, err := c.Get(Key("deploy", 7))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(payload) != "page" {
		t.Errorf("payload = %q after reopen", payload)
	}
}
