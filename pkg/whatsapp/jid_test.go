package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/types"
)

func TestComposeJID(t *testing.T) {
	cases := []struct {
		in   string
		want types.JID
	}{
		{"4912345678", types.NewJID("4912345678", types.DefaultUserServer)},
		{"+4912345678", types.NewJID("4912345678", types.DefaultUserServer)},
		{"4912345678@s.whatsapp.net", types.NewJID("4912345678", types.DefaultUserServer)},
		{"123456789-987654", types.NewJID("123456789-987654", types.GroupServer)},
		{"120363041234567890", types.NewJID("120363041234567890", types.GroupServer)},
		{"120363041234567890@g.us", types.NewJID("120363041234567890", types.GroupServer)},
	}

	for _, tc := range cases {
		got := ComposeJID(tc.in)
		if got != tc.want {
			t.Errorf("ComposeJID(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if got.User == "" {
			t.Errorf("ComposeJID(%q) produced an empty user part", tc.in)
		}
	}
}

func TestComposeJIDRoundTrip(t *testing.T) {
	for _, jid := range []types.JID{
		types.NewJID("4912345678", types.DefaultUserServer),
		types.NewJID("120363041234567890", types.GroupServer),
	} {
		if got := ComposeJID(jid.String()); got != jid {
			t.Errorf("ComposeJID(%q) = %v, want %v", jid.String(), got, jid)
		}
	}
}

func TestDecomposeJID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"4912345678@s.whatsapp.net", "4912345678"},
		{"+4912345678", "4912345678"},
		{" 4912345678 ", "4912345678"},
	}
	for _, tc := range cases {
		if got := DecomposeJID(tc.in); got != tc.want {
			t.Errorf("DecomposeJID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
