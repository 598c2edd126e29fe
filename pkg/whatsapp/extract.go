package whatsapp

import (
	"strings"
	"sync"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// ExtractMessageText derives the display/matching text of a message through a
// priority-ordered decision table: plain text, extended text, media caption,
// media placeholder, generic bracketed kind, empty string. Keyword monitoring
// depends on this derivation, so the order is load-bearing.
func ExtractMessageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	if ext := m.GetExtendedTextMessage(); ext != nil && ext.GetText() != "" {
		return ext.GetText()
	}
	if img := m.GetImageMessage(); img != nil {
		if caption := img.GetCaption(); caption != "" {
			return caption
		}
		return "[Image]"
	}
	if vid := m.GetVideoMessage(); vid != nil {
		if caption := vid.GetCaption(); caption != "" {
			return caption
		}
		return "[Video]"
	}
	if doc := m.GetDocumentMessage(); doc != nil {
		if caption := doc.GetCaption(); caption != "" {
			return caption
		}
		return "[Document]"
	}
	if m.GetAudioMessage() != nil {
		return "[Audio]"
	}
	if m.GetStickerMessage() != nil {
		return "[Sticker]"
	}
	if m.GetLocationMessage() != nil || m.GetLiveLocationMessage() != nil {
		return "[Location]"
	}
	if m.GetContactMessage() != nil || m.GetContactsArrayMessage() != nil {
		return "[Contact]"
	}
	if kind := MessageKind(m); kind != "" && kind != "unknown" {
		return "[" + kind + "]"
	}
	return ""
}

// MessageKind labels the payload variant of a message.
func MessageKind(m *waE2E.Message) string {
	switch {
	case m == nil:
		return "unknown"
	case m.GetConversation() != "":
		return "text"
	case m.GetExtendedTextMessage() != nil:
		return "extended_text"
	case m.GetImageMessage() != nil:
		return "image"
	case m.GetVideoMessage() != nil:
		return "video"
	case m.GetAudioMessage() != nil:
		return "audio"
	case m.GetDocumentMessage() != nil:
		return "document"
	case m.GetStickerMessage() != nil:
		return "sticker"
	case m.GetLocationMessage() != nil, m.GetLiveLocationMessage() != nil:
		return "location"
	case m.GetContactMessage() != nil, m.GetContactsArrayMessage() != nil:
		return "contact"
	case m.GetPollCreationMessageV3() != nil, m.GetPollCreationMessage() != nil:
		return "poll"
	case m.GetReactionMessage() != nil:
		return "reaction"
	case m.GetProtocolMessage() != nil:
		return "protocol"
	default:
		return "unknown"
	}
}

// IsMediaMessage reports whether the message carries downloadable media.
func IsMediaMessage(m *waE2E.Message) bool {
	if m == nil {
		return false
	}
	return m.GetImageMessage() != nil ||
		m.GetVideoMessage() != nil ||
		m.GetAudioMessage() != nil ||
		m.GetDocumentMessage() != nil ||
		m.GetStickerMessage() != nil
}

// PreviewText produces a chat-list preview from a message body: emoji-only
// bodies pass through untruncated, everything else is cut at a grapheme
// cluster boundary so multi-codepoint characters survive the truncation.
func PreviewText(body string, maxGraphemes int) string {
	body = strings.TrimSpace(body)
	if body == "" || maxGraphemes <= 0 {
		return body
	}
	if gomoji.RemoveEmojis(body) == "" {
		// Pure-emoji bodies are short already; cutting one in half produces
		// garbage clusters.
		return body
	}
	gr := uniseg.NewGraphemes(body)
	count := 0
	end := len(body)
	truncated := false
	for gr.Next() {
		count++
		if count > maxGraphemes {
			truncated = true
			break
		}
		_, end = gr.Positions()
	}
	if !truncated {
		return body
	}
	return body[:end] + "..."
}

// KeywordSet is an ordered set of case-insensitive monitored substrings.
type KeywordSet struct {
	mu       sync.RWMutex
	keywords []string
}

func NewKeywordSet(initial ...string) *KeywordSet {
	ks := &KeywordSet{}
	for _, k := range initial {
		ks.Add(k)
	}
	return ks
}

// Add appends a keyword, reporting false when it is empty or already present.
func (ks *KeywordSet) Add(keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for _, existing := range ks.keywords {
		if strings.EqualFold(existing, keyword) {
			return false
		}
	}
	ks.keywords = append(ks.keywords, keyword)
	return true
}

// Remove deletes a keyword, reporting whether it was present.
func (ks *KeywordSet) Remove(keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for i, existing := range ks.keywords {
		if strings.EqualFold(existing, keyword) {
			ks.keywords = append(ks.keywords[:i], ks.keywords[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the keywords in insertion order.
func (ks *KeywordSet) List() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]string, len(ks.keywords))
	copy(out, ks.keywords)
	return out
}

// Replace swaps the whole set, preserving the given order.
func (ks *KeywordSet) Replace(keywords []string) {
	ks.mu.Lock()
	ks.keywords = ks.keywords[:0]
	ks.mu.Unlock()
	for _, k := range keywords {
		ks.Add(k)
	}
}

// Match reports the first keyword that is a case-insensitive substring of the
// given text.
func (ks *KeywordSet) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lowered := strings.ToLower(text)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for _, keyword := range ks.keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return keyword, true
		}
	}
	return "", false
}
