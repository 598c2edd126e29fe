package whatsapp

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// ChatInfo is one entry in the groups or private-chats directory. The identity
// key is the transport-assigned chat JID.
type ChatInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	LastMessage      string    `json:"last_message"`
	Timestamp        time.Time `json:"timestamp"`
	IsGroup          bool      `json:"is_group"`
	ParticipantCount int       `json:"participant_count,omitempty"`
	Description      string    `json:"description,omitempty"`
}

// MessageRecord is the normalized shape of one transport message.
type MessageRecord struct {
	ID          string    `json:"id"`
	Body        string    `json:"body"`
	From        string    `json:"from"`
	FromMe      bool      `json:"from_me"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	IsGroup     bool      `json:"is_group"`
	GroupName   string    `json:"group_name,omitempty"`
	ContactName string    `json:"contact_name,omitempty"`
	ChatID      string    `json:"chat_id"`
	IsMedia     bool      `json:"is_media"`
}

// IsGroupJID reports whether a chat id belongs to the group server.
func IsGroupJID(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us")
}

// ChatCache holds the group/private-chat directories and bounded per-chat
// message buffers. All methods are safe for concurrent use.
type ChatCache struct {
	mu           sync.RWMutex
	groups       map[string]ChatInfo
	privateChats map[string]ChatInfo
	messages     map[string][]MessageRecord
	capPerChat   int
	retention    time.Duration
}

func NewChatCache(capPerChat int, retention time.Duration) *ChatCache {
	if capPerChat <= 0 {
		capPerChat = 100
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ChatCache{
		groups:       make(map[string]ChatInfo),
		privateChats: make(map[string]ChatInfo),
		messages:     make(map[string][]MessageRecord),
		capPerChat:   capPerChat,
		retention:    retention,
	}
}

// UpsertChat inserts or replaces a directory entry. A chat id lives in exactly
// one directory, decided by its server suffix, never in both.
func (c *ChatCache) UpsertChat(info ChatInfo) {
	if info.ID == "" {
		return
	}
	info.IsGroup = IsGroupJID(info.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.IsGroup {
		delete(c.privateChats, info.ID)
		c.groups[info.ID] = info
	} else {
		delete(c.groups, info.ID)
		c.privateChats[info.ID] = info
	}
}

// Chat looks up a directory entry in either directory.
func (c *ChatCache) Chat(chatID string) (ChatInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if info, ok := c.groups[chatID]; ok {
		return info, true
	}
	info, ok := c.privateChats[chatID]
	return info, ok
}

// TouchChat updates the preview and activity timestamp of a known chat,
// creating a minimal entry when the chat is not in a directory yet.
func (c *ChatCache) TouchChat(chatID, name, preview string, ts time.Time) {
	if chatID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := c.privateChats
	if IsGroupJID(chatID) {
		dir = c.groups
	}
	info, ok := dir[chatID]
	if !ok {
		info = ChatInfo{ID: chatID, IsGroup: IsGroupJID(chatID)}
	}
	if name != "" {
		info.Name = name
	}
	if preview != "" {
		info.LastMessage = preview
	}
	if ts.After(info.Timestamp) {
		info.Timestamp = ts
	}
	dir[chatID] = info
}

// AppendMessage prepends a record to its chat buffer (newest first) and evicts
// the oldest inserted entries beyond the per-chat cap. A record whose ID is
// already buffered is dropped, so a history replay of a live message never
// doubles up.
func (c *ChatCache) AppendMessage(rec MessageRecord) {
	if rec.ChatID == "" || rec.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.messages[rec.ChatID]
	for _, existing := range buf {
		if existing.ID == rec.ID {
			return
		}
	}
	buf = append([]MessageRecord{rec}, buf...)
	if len(buf) > c.capPerChat {
		buf = buf[:c.capPerChat]
	}
	c.messages[rec.ChatID] = buf
}

// Messages returns a copy of one chat's buffer, newest first.
func (c *ChatCache) Messages(chatID string) []MessageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf := c.messages[chatID]
	out := make([]MessageRecord, len(buf))
	copy(out, buf)
	return out
}

// RecentMessages returns up to limit records across all chats, newest first.
func (c *ChatCache) RecentMessages(limit int) []MessageRecord {
	c.mu.RLock()
	var all []MessageRecord
	for _, buf := range c.messages {
		all = append(all, buf...)
	}
	c.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Groups returns the group directory ordered by most recent activity.
func (c *ChatCache) Groups() []ChatInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedChats(c.groups)
}

// PrivateChats returns the private-chat directory ordered by most recent
// activity.
func (c *ChatCache) PrivateChats() []ChatInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedChats(c.privateChats)
}

func sortedChats(dir map[string]ChatInfo) []ChatInfo {
	out := make([]ChatInfo, 0, len(dir))
	for _, info := range dir {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Counts reports directory and buffer sizes for the status snapshot.
func (c *ChatCache) Counts() (groups, privateChats, messages int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, buf := range c.messages {
		messages += len(buf)
	}
	return len(c.groups), len(c.privateChats), messages
}

// Evict drops messages that are both older than the retention window and
// belong to a chat absent from the active directories, then truncates every
// buffer to the cap. Chats left without messages are removed entirely so
// memory is bounded by active-chat count.
func (c *ChatCache) Evict(now time.Time) (removedMessages, removedChats int) {
	cutoff := now.Add(-c.retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	for chatID, buf := range c.messages {
		_, inGroups := c.groups[chatID]
		_, inPrivate := c.privateChats[chatID]
		active := inGroups || inPrivate
		kept := buf[:0]
		for _, rec := range buf {
			if rec.Timestamp.After(cutoff) || active {
				kept = append(kept, rec)
			}
		}
		if len(kept) > c.capPerChat {
			kept = kept[:c.capPerChat]
		}
		removedMessages += len(buf) - len(kept)
		if len(kept) == 0 {
			delete(c.messages, chatID)
			removedChats++
			continue
		}
		c.messages[chatID] = kept
	}
	return removedMessages, removedChats
}

// Clear wipes both directories and every message buffer.
func (c *ChatCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[string]ChatInfo)
	c.privateChats = make(map[string]ChatInfo)
	c.messages = make(map[string][]MessageRecord)
}

// ExportMessages snapshots the message buffers for persistence.
func (c *ChatCache) ExportMessages() map[string][]MessageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]MessageRecord, len(c.messages))
	for chatID, buf := range c.messages {
		cp := make([]MessageRecord, len(buf))
		copy(cp, buf)
		out[chatID] = cp
	}
	return out
}

// ImportMessages restores persisted buffers, trimming to the cap.
func (c *ChatCache) ImportMessages(messages map[string][]MessageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chatID, buf := range messages {
		if chatID == "" || len(buf) == 0 {
			continue
		}
		if len(buf) > c.capPerChat {
			buf = buf[:c.capPerChat]
		}
		cp := make([]MessageRecord, len(buf))
		copy(cp, buf)
		c.messages[chatID] = cp
	}
}

// ImportDirectory restores persisted directory entries.
func (c *ChatCache) ImportDirectory(groups, privateChats []ChatInfo) {
	for _, info := range groups {
		c.UpsertChat(info)
	}
	for _, info := range privateChats {
		c.UpsertChat(info)
	}
}
