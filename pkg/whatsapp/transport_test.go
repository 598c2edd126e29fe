package whatsapp

import (
	"context"
	"testing"
)

func newTestTransport(t *testing.T) *MeowTransport {
	t.Helper()
	tr, err := NewMeowTransport(context.Background(), TransportConfig{
		Driver: "sqlite3",
		DSN:    t.TempDir() + "/credentials.db",
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestMeowTransportRemoveEventHandlerDetachesClient(t *testing.T) {
	tr := newTestTransport(t)

	id := tr.AddEventHandler(func(evt interface{}) {})
	clientID, ok := tr.clientIDs[id]
	if !ok {
		t.Fatal("no client-side handler id recorded")
	}

	tr.RemoveEventHandler(id)

	// A second client-side removal must report the handler as gone.
	if tr.client.RemoveEventHandler(clientID) {
		t.Fatal("handler still registered on the client after removal")
	}
	if len(tr.handlers) != 0 || len(tr.clientIDs) != 0 {
		t.Fatalf("registry not empty: handlers=%d clientIDs=%d", len(tr.handlers), len(tr.clientIDs))
	}
}

func TestMeowTransportHandlerSurvivesCredentialWipe(t *testing.T) {
	tr := newTestTransport(t)

	id := tr.AddEventHandler(func(evt interface{}) {})
	if err := tr.ClearCredentials(context.Background()); err != nil {
		t.Fatal(err)
	}

	clientID, ok := tr.clientIDs[id]
	if !ok {
		t.Fatal("client-side handler id lost across client rebuild")
	}

	tr.RemoveEventHandler(id)
	if tr.client.RemoveEventHandler(clientID) {
		t.Fatal("handler still registered on the rebuilt client after removal")
	}
}
