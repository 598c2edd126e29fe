package notify

import (
	"testing"
)

func TestSubscribedFilter(t *testing.T) {
	all := Subscription{Events: nil}
	filtered := Subscription{Events: []string{"message.received"}}

	if !subscribed(all, "connection.status") {
		t.Fatal("empty event list must receive everything")
	}
	if !subscribed(filtered, "message.received") {
		t.Fatal("listed event must match")
	}
	if subscribed(filtered, "connection.status") {
		t.Fatal("unlisted event must not match")
	}
}

func TestSignPayload(t *testing.T) {
	sig := signPayload([]byte(`{"a":1}`), "secret")
	if sig == "" || sig[:7] != "sha256=" {
		t.Fatalf("unexpected signature: %q", sig)
	}
	if again := signPayload([]byte(`{"a":1}`), "secret"); again != sig {
		t.Fatal("signature must be deterministic")
	}
	if signPayload([]byte(`{"a":1}`), "") != "" {
		t.Fatal("empty secret must produce no signature")
	}
}

func TestValidateURLRejectsPrivateTargets(t *testing.T) {
	engine := &Engine{}

	if err := engine.ValidateURL("https://example.com/hook"); err != nil {
		t.Fatalf("public https rejected: %v", err)
	}
	for _, raw := range []string{
		"http://example.com/hook",
		"https://localhost/hook",
		"https://127.0.0.1/hook",
		"https://192.168.1.5/hook",
		"https://10.0.0.1/hook",
	} {
		if err := engine.ValidateURL(raw); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}

	permissive := &Engine{allowHTTP: true}
	if err := permissive.ValidateURL("http://localhost:9999/hook"); err != nil {
		t.Fatalf("allowHTTP must permit local http: %v", err)
	}
}
