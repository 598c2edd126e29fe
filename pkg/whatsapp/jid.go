package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ComposeJID turns a raw phone number or chat id into a transport JID,
// guessing the group server for dash-separated or long ids. ParseJID is only
// trusted for ids that carry a server suffix; on a bare number it reads the
// whole input as the server and produces a JID with an empty user part.
func ComposeJID(id string) types.JID {
	if strings.ContainsRune(id, '@') {
		if parsed, err := types.ParseJID(id); err == nil && parsed.User != "" {
			return parsed
		}
	}

	id = DecomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

// DecomposeJID strips the server suffix and a leading plus sign.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		buffers := strings.Split(id, "@")
		id = buffers[0]
	}

	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}

	return strings.TrimSpace(id)
}
