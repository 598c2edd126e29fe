package whatsapp

import (
	"context"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.mau.fi/whatsmeow/proto/waWeb"
)

// fakeTransport is an in-memory Transport for service tests. Tests drive the
// state machine by emitting whatsmeow events through it.
type fakeTransport struct {
	mu sync.Mutex

	handlers map[uint32]func(interface{})
	nextID   uint32

	connected  bool
	loggedIn   bool
	hasSession bool

	connectErr error

	clearCount    int
	presenceCount int
	logoutCalls   int

	sentTexts  []string
	sentImages []string

	groups       []*types.GroupInfo
	contacts     map[types.JID]types.ContactInfo
	contactNames map[types.JID]string

	qrChan chan whatsmeow.QRChannelItem
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:     map[uint32]func(interface{}){},
		nextID:       1,
		hasSession:   true,
		loggedIn:     true,
		contacts:     map[types.JID]types.ContactInfo{},
		contactNames: map[types.JID]string{},
		qrChan:       make(chan whatsmeow.QRChannelItem, 8),
	}
}

func (f *fakeTransport) emit(evt interface{}) {
	f.mu.Lock()
	handlers := make([]func(interface{}), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (f *fakeTransport) AddEventHandler(handler func(evt interface{})) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	return id
}

func (f *fakeTransport) RemoveEventHandler(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, id)
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.connected = false
	f.loggedIn = false
	return nil
}

func (f *fakeTransport) ClearCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCount++
	f.connected = false
	f.loggedIn = false
	f.hasSession = false
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeTransport) HasSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasSession
}

func (f *fakeTransport) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return f.qrChan, nil
}

func (f *fakeTransport) PairPhone(ctx context.Context, phone string) (string, error) {
	return "ABCD-1234", nil
}

func (f *fakeTransport) SendPresence(ctx context.Context, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.presenceCount++
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, to types.JID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", ErrNotConnected
	}
	f.sentTexts = append(f.sentTexts, text)
	return "fake-msg-id", nil
}

func (f *fakeTransport) SendImage(ctx context.Context, to types.JID, image []byte, mimeType, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", ErrNotConnected
	}
	f.sentImages = append(f.sentImages, caption)
	return "fake-img-id", nil
}

func (f *fakeTransport) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, nil
}

func (f *fakeTransport) GroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.JID == jid {
			return g, nil
		}
	}
	return &types.GroupInfo{JID: jid}, nil
}

func (f *fakeTransport) ContactName(ctx context.Context, jid types.JID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactNames[jid.ToNonAD()], nil
}

func (f *fakeTransport) AllContacts(ctx context.Context) (map[types.JID]types.ContactInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[types.JID]types.ContactInfo, len(f.contacts))
	for jid, info := range f.contacts {
		out[jid] = info
	}
	return out, nil
}

func (f *fakeTransport) ParseWebMessage(chat types.JID, webMsg *waWeb.WebMessageInfo) (*events.Message, error) {
	return nil, nil
}

func (f *fakeTransport) presenceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presenceCount
}

func (f *fakeTransport) clearCredentialCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCount
}

func (f *fakeTransport) setContactName(jid types.JID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactNames[jid.ToNonAD()] = name
}

// recorderNotifier captures published events for assertions.
type recorderNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Event string
	Data  map[string]interface{}
}

func (r *recorderNotifier) Publish(event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: event, Data: data})
}

func (r *recorderNotifier) byEvent(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
