package whatsapp

import (
	"fmt"
	"testing"
	"time"
)

func msgAt(chatID, id string, ts time.Time) MessageRecord {
	return MessageRecord{
		ID:        id,
		Body:      "body " + id,
		From:      "111@s.whatsapp.net",
		Timestamp: ts,
		Type:      "text",
		IsGroup:   IsGroupJID(chatID),
		ChatID:    chatID,
	}
}

func TestUpsertChatDirectoryExclusivity(t *testing.T) {
	cache := NewChatCache(10, time.Hour)

	cache.UpsertChat(ChatInfo{ID: "123@g.us", Name: "Team"})
	cache.UpsertChat(ChatInfo{ID: "456@s.whatsapp.net", Name: "Alice"})
	cache.UpsertChat(ChatInfo{ID: "123@g.us", Name: "Team Renamed"})

	groups, privateChats, _ := cache.Counts()
	if groups != 1 || privateChats != 1 {
		t.Fatalf("counts = (%d, %d), want (1, 1)", groups, privateChats)
	}

	chat, ok := cache.Chat("123@g.us")
	if !ok || chat.Name != "Team Renamed" {
		t.Fatalf("upsert did not replace: %+v", chat)
	}
	if !chat.IsGroup {
		t.Fatal("group server suffix must mark the chat as group")
	}
	if alice, _ := cache.Chat("456@s.whatsapp.net"); alice.IsGroup {
		t.Fatal("user server suffix must mark the chat as private")
	}
}

func TestAppendMessageNewestFirstAndCap(t *testing.T) {
	cache := NewChatCache(3, time.Hour)
	chatID := "123@g.us"

	base := time.Now()
	for i := 1; i <= 5; i++ {
		cache.AppendMessage(msgAt(chatID, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	msgs := cache.Messages(chatID)
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want cap 3", len(msgs))
	}
	if msgs[0].ID != "m5" || msgs[1].ID != "m4" || msgs[2].ID != "m3" {
		t.Fatalf("unexpected order: %s %s %s", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestAppendMessageRejectsIncomplete(t *testing.T) {
	cache := NewChatCache(10, time.Hour)
	cache.AppendMessage(MessageRecord{ID: "", ChatID: "123@g.us"})
	cache.AppendMessage(MessageRecord{ID: "m1", ChatID: ""})
	if _, _, messages := cache.Counts(); messages != 0 {
		t.Fatalf("messages = %d, want 0", messages)
	}
}

func TestTouchChatCreatesMinimalEntry(t *testing.T) {
	cache := NewChatCache(10, time.Hour)
	ts := time.Now()

	cache.TouchChat("789@s.whatsapp.net", "Bob", "hello", ts)

	chat, ok := cache.Chat("789@s.whatsapp.net")
	if !ok {
		t.Fatal("touch must create a directory entry")
	}
	if chat.Name != "Bob" || chat.LastMessage != "hello" || !chat.Timestamp.Equal(ts) {
		t.Fatalf("unexpected entry: %+v", chat)
	}

	// Older activity must not move the timestamp backwards.
	cache.TouchChat("789@s.whatsapp.net", "", "older", ts.Add(-time.Minute))
	chat, _ = cache.Chat("789@s.whatsapp.net")
	if !chat.Timestamp.Equal(ts) {
		t.Fatalf("timestamp moved backwards: %v", chat.Timestamp)
	}
	if chat.LastMessage != "older" {
		t.Fatalf("preview not updated: %q", chat.LastMessage)
	}
}

func TestEvictRetentionAndActiveDirectory(t *testing.T) {
	cache := NewChatCache(10, time.Hour)
	now := time.Now()
	stale := now.Add(-2 * time.Hour)
	fresh := now.Add(-time.Minute)

	// Active chat: stale messages survive through directory membership.
	cache.UpsertChat(ChatInfo{ID: "active@g.us", Name: "Active"})
	cache.AppendMessage(msgAt("active@g.us", "a1", stale))
	cache.AppendMessage(msgAt("active@g.us", "a2", fresh))

	// Orphan chat: only the fresh message survives.
	cache.AppendMessage(msgAt("orphan@s.whatsapp.net", "o1", stale))
	cache.AppendMessage(msgAt("orphan@s.whatsapp.net", "o2", fresh))

	// Dead chat: everything stale and not in a directory, dropped entirely.
	cache.AppendMessage(msgAt("dead@s.whatsapp.net", "d1", stale))

	removedMessages, removedChats := cache.Evict(now)
	if removedMessages != 2 {
		t.Fatalf("removedMessages = %d, want 2", removedMessages)
	}
	if removedChats != 1 {
		t.Fatalf("removedChats = %d, want 1", removedChats)
	}

	if got := len(cache.Messages("active@g.us")); got != 2 {
		t.Fatalf("active buffer = %d, want 2", got)
	}
	if got := len(cache.Messages("orphan@s.whatsapp.net")); got != 1 {
		t.Fatalf("orphan buffer = %d, want 1", got)
	}
	if got := len(cache.Messages("dead@s.whatsapp.net")); got != 0 {
		t.Fatalf("dead buffer = %d, want 0", got)
	}
}

func TestEvictTruncatesToCap(t *testing.T) {
	cache := NewChatCache(2, time.Hour)
	cache.UpsertChat(ChatInfo{ID: "busy@g.us"})

	now := time.Now()
	buf := []MessageRecord{
		msgAt("busy@g.us", "m3", now),
		msgAt("busy@g.us", "m2", now.Add(-time.Second)),
		msgAt("busy@g.us", "m1", now.Add(-2*time.Second)),
	}
	// Bypass the append cap to simulate a lowered cap after restart.
	cache.messages["busy@g.us"] = buf

	removedMessages, _ := cache.Evict(now)
	if removedMessages != 1 {
		t.Fatalf("removedMessages = %d, want 1", removedMessages)
	}
	msgs := cache.Messages("busy@g.us")
	if len(msgs) != 2 || msgs[0].ID != "m3" {
		t.Fatalf("unexpected buffer after truncate: %+v", msgs)
	}
}

func TestRecentMessagesAcrossChats(t *testing.T) {
	cache := NewChatCache(10, time.Hour)
	base := time.Now()

	cache.AppendMessage(msgAt("a@g.us", "m1", base.Add(1*time.Second)))
	cache.AppendMessage(msgAt("b@s.whatsapp.net", "m2", base.Add(3*time.Second)))
	cache.AppendMessage(msgAt("a@g.us", "m3", base.Add(2*time.Second)))

	recent := cache.RecentMessages(2)
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].ID != "m2" || recent[1].ID != "m3" {
		t.Fatalf("unexpected order: %s %s", recent[0].ID, recent[1].ID)
	}
}

func TestImportMessagesTrimsToCap(t *testing.T) {
	cache := NewChatCache(2, time.Hour)
	now := time.Now()

	cache.ImportMessages(map[string][]MessageRecord{
		"a@g.us": {
			msgAt("a@g.us", "m3", now),
			msgAt("a@g.us", "m2", now.Add(-time.Second)),
			msgAt("a@g.us", "m1", now.Add(-2*time.Second)),
		},
		"": {msgAt("", "x", now)},
	})

	if got := len(cache.Messages("a@g.us")); got != 2 {
		t.Fatalf("imported buffer = %d, want 2", got)
	}
	if _, _, messages := cache.Counts(); messages != 2 {
		t.Fatalf("messages = %d, want 2", messages)
	}
}

func TestChatCacheAppendDeduplicatesByID(t *testing.T) {
	c := NewChatCache(10, time.Hour)
	ts := time.Now()

	c.AppendMessage(msgAt("123@s.whatsapp.net", "m1", ts))
	c.AppendMessage(msgAt("123@s.whatsapp.net", "m1", ts.Add(time.Minute)))

	if got := c.Messages("123@s.whatsapp.net"); len(got) != 1 {
		t.Fatalf("duplicate id buffered, len = %d", len(got))
	}
}
