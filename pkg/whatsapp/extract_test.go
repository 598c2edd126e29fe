package whatsapp

import (
	"strings"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestExtractMessageTextDecisionTable(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked text")}},
			"linked text",
		},
		{
			"conversation wins over extended",
			&waE2E.Message{
				Conversation:        proto.String("plain"),
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("rich")},
			},
			"plain",
		},
		{
			"image caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look at this")}},
			"look at this",
		},
		{"image placeholder", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "[Image]"},
		{
			"video caption",
			&waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")}},
			"clip",
		},
		{"video placeholder", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "[Video]"},
		{
			"document caption",
			&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("report")}},
			"report",
		},
		{"document placeholder", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "[Document]"},
		{"audio placeholder", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "[Audio]"},
		{"sticker placeholder", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "[Sticker]"},
		{"location placeholder", &waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, "[Location]"},
		{"contact placeholder", &waE2E.Message{ContactMessage: &waE2E.ContactMessage{}}, "[Contact]"},
		{"poll generic fallback", &waE2E.Message{PollCreationMessage: &waE2E.PollCreationMessage{}}, "[poll]"},
		{"empty message", &waE2E.Message{}, ""},
	}

	for _, tc := range cases {
		if got := ExtractMessageText(tc.msg); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMessageKindAndMedia(t *testing.T) {
	img := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}
	if kind := MessageKind(img); kind != "image" {
		t.Fatalf("kind = %q, want image", kind)
	}
	if !IsMediaMessage(img) {
		t.Fatal("image must be media")
	}
	text := &waE2E.Message{Conversation: proto.String("hi")}
	if IsMediaMessage(text) {
		t.Fatal("text must not be media")
	}
	if kind := MessageKind(&waE2E.Message{}); kind != "unknown" {
		t.Fatalf("kind = %q, want unknown", kind)
	}
}

func TestPreviewTextTruncatesOnGraphemes(t *testing.T) {
	long := strings.Repeat("a", 60)
	got := PreviewText(long, 50)
	if got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("unexpected truncation: %q", got)
	}

	// A family emoji is one grapheme cluster built from several runes; a
	// cluster-aware cut keeps it intact.
	clustered := strings.Repeat("x", 49) + "👨‍👩‍👧‍👦y"
	got = PreviewText(clustered, 50)
	if !strings.HasSuffix(got, "👨‍👩‍👧‍👦...") {
		t.Fatalf("cluster split in truncation: %q", got)
	}

	if got := PreviewText("short", 50); got != "short" {
		t.Fatalf("short body must pass through, got %q", got)
	}
}

func TestPreviewTextEmojiOnlyPassthrough(t *testing.T) {
	body := strings.Repeat("🎉", 60)
	if got := PreviewText(body, 50); got != body {
		t.Fatalf("emoji-only body must not be truncated, got %q", got)
	}
}

func TestKeywordSetMatch(t *testing.T) {
	ks := NewKeywordSet("demo", "urgent")

	if keyword, ok := ks.Match("This is a DEMO run"); !ok || keyword != "demo" {
		t.Fatalf("match = (%q, %v), want (demo, true)", keyword, ok)
	}
	if _, ok := ks.Match("nothing to see"); ok {
		t.Fatal("unexpected match")
	}
	if _, ok := ks.Match(""); ok {
		t.Fatal("empty text must not match")
	}
}

func TestKeywordSetAddRemove(t *testing.T) {
	ks := NewKeywordSet()

	if !ks.Add("alpha") {
		t.Fatal("first add must succeed")
	}
	if ks.Add("ALPHA") {
		t.Fatal("case-insensitive duplicate must be rejected")
	}
	if ks.Add("  ") {
		t.Fatal("blank keyword must be rejected")
	}
	ks.Add("beta")

	if got := ks.List(); len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("unexpected list: %v", got)
	}

	if !ks.Remove("Alpha") {
		t.Fatal("remove must be case-insensitive")
	}
	if ks.Remove("alpha") {
		t.Fatal("second remove must report absence")
	}
	if got := ks.List(); len(got) != 1 || got[0] != "beta" {
		t.Fatalf("unexpected list after remove: %v", got)
	}
}
