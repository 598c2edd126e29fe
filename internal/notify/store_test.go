package notify

import (
	"path/filepath"
	"testing"
)

func TestStoreCreateListDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := store.Create("https://example.com/hook", "s3cret", []string{"message.received"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID == "" || !sub.Active {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	listed := store.List()
	if len(listed) != 1 {
		t.Fatalf("len = %d, want 1", len(listed))
	}
	if listed[0].Secret != "********" {
		t.Fatalf("secret not redacted: %q", listed[0].Secret)
	}

	active := store.Active()
	if len(active) != 1 || active[0].Secret != "s3cret" {
		t.Fatalf("active must keep the secret for signing: %+v", active)
	}

	if err := store.Delete(sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(sub.ID); err != ErrSubscriptionNotFound {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
	if got := store.List(); len(got) != 0 {
		t.Fatalf("len after delete = %d, want 0", len(got))
	}
}

func TestStoreSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := store.Create("https://example.com/hook", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	subs := reloaded.List()
	if len(subs) != 1 || subs[0].ID != sub.ID || subs[0].URL != sub.URL {
		t.Fatalf("unexpected reloaded subscriptions: %+v", subs)
	}
}
