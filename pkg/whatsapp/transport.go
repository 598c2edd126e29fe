package whatsapp

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sunshineplan/imgconv"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
)

// ErrNotConnected is returned by caller-facing operations invoked while the
// transport has no live socket.
var ErrNotConnected = errors.New("whatsapp transport is not connected")

// Transport is the narrow surface of the multi-device client the service
// depends on. Tests substitute a fake; production uses MeowTransport.
type Transport interface {
	AddEventHandler(handler func(evt interface{})) uint32
	RemoveEventHandler(id uint32)
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	ClearCredentials(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool
	HasSession() bool
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	PairPhone(ctx context.Context, phone string) (string, error)
	SendPresence(ctx context.Context, available bool) error
	SendText(ctx context.Context, to types.JID, text string) (string, error)
	SendImage(ctx context.Context, to types.JID, image []byte, mimeType, caption string) (string, error)
	JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error)
	GroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	ContactName(ctx context.Context, jid types.JID) (string, error)
	AllContacts(ctx context.Context) (map[types.JID]types.ContactInfo, error)
	ParseWebMessage(chat types.JID, webMsg *waWeb.WebMessageInfo) (*events.Message, error)
}

// TransportConfig selects the credential datastore and client identity.
type TransportConfig struct {
	Driver   string
	DSN      string
	ProxyURL string
	Compress bool
}

// TransportConfigFromEnv reads the datastore settings, defaulting to a local
// SQLite file so credentials live on the filesystem next to the snapshots.
func TransportConfigFromEnv() TransportConfig {
	return TransportConfig{
		Driver:   env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", "sqlite3"),
		DSN:      env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", "./data/credentials.db"),
		ProxyURL: env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
		Compress: env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_COMPRESSION", false),
	}
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	switch driver {
	case "sqlite3":
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		if !strings.Contains(dsn, "_foreign_keys=") {
			separator := "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
			dsn += separator + "_foreign_keys=on"
		}
		return dsn
	case "pgx":
		appendParam := func(current string, key string, value string) string {
			if strings.Contains(current, key+"=") {
				return current
			}
			separator := "?"
			if strings.Contains(current, "?") {
				if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
					separator = ""
				} else {
					separator = "&"
				}
			}
			return current + separator + key + "=" + value
		}
		dsn = appendParam(dsn, "prefer_simple_protocol", "true")
		dsn = appendParam(dsn, "statement_cache_capacity", "0")
		dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
		return dsn
	default:
		return dsn
	}
}

// MeowTransport adapts a whatsmeow client to the Transport interface. It keeps
// its own handler registry so handlers survive the client rebuild that follows
// a credential wipe.
type MeowTransport struct {
	cfg       TransportConfig
	container *sqlstore.Container

	mu        sync.Mutex
	client    *whatsmeow.Client
	handlers  map[uint32]func(evt interface{})
	clientIDs map[uint32]uint32
	nextID    uint32
}

func NewMeowTransport(ctx context.Context, cfg TransportConfig) (*MeowTransport, error) {
	driver := normalizeDatastoreDriver(cfg.Driver)
	dsn := normalizeDatastoreDSN(driver, cfg.DSN)

	container, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade credential datastore: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			device = container.NewDevice()
		} else {
			return nil, fmt.Errorf("load device credentials: %w", err)
		}
	}

	t := &MeowTransport{
		cfg:       cfg,
		container: container,
		handlers:  make(map[uint32]func(evt interface{})),
		clientIDs: make(map[uint32]uint32),
		nextID:    1,
	}
	t.client = t.buildClient(device)
	return t, nil
}

func (t *MeowTransport) buildClient(device *store.Device) *whatsmeow.Client {
	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	if major, err := env.GetEnvInt("WHATSAPP_VERSION_MAJOR"); err == nil {
		store.DeviceProps.Version.Primary = proto.Uint32(uint32(major))
	}
	if minor, err := env.GetEnvInt("WHATSAPP_VERSION_MINOR"); err == nil {
		store.DeviceProps.Version.Secondary = proto.Uint32(uint32(minor))
	}
	if patch, err := env.GetEnvInt("WHATSAPP_VERSION_PATCH"); err == nil {
		store.DeviceProps.Version.Tertiary = proto.Uint32(uint32(patch))
	}

	client := whatsmeow.NewClient(device, nil)

	if t.cfg.ProxyURL != "" {
		client.SetProxyAddress(t.cfg.ProxyURL)
	}

	// The recovery loop owns reconnection policy; the library must not race it.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	for id, handler := range t.handlers {
		t.clientIDs[id] = client.AddEventHandler(handler)
	}
	return client
}

func (t *MeowTransport) current() *whatsmeow.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *MeowTransport) AddEventHandler(handler func(evt interface{})) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.clientIDs[id] = t.client.AddEventHandler(handler)
	return id
}

// RemoveEventHandler detaches the handler from both the registry and the live
// client, so a stopped service receives no further events.
func (t *MeowTransport) RemoveEventHandler(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if clientID, ok := t.clientIDs[id]; ok {
		t.client.RemoveEventHandler(clientID)
		delete(t.clientIDs, id)
	}
	delete(t.handlers, id)
}

func (t *MeowTransport) Connect() error {
	return t.current().Connect()
}

func (t *MeowTransport) Disconnect() {
	t.current().Disconnect()
}

func (t *MeowTransport) Logout(ctx context.Context) error {
	return t.current().Logout(ctx)
}

// ClearCredentials deletes the stored device identity and rebuilds the client
// around a fresh device so the next connect starts a new pairing cycle.
func (t *MeowTransport) ClearCredentials(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	client.Disconnect()
	if client.Store.ID != nil {
		if err := client.Store.Delete(ctx); err != nil {
			return fmt.Errorf("delete device credentials: %w", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = t.buildClient(t.container.NewDevice())
	return nil
}

func (t *MeowTransport) IsConnected() bool {
	return t.current().IsConnected()
}

func (t *MeowTransport) IsLoggedIn() bool {
	return t.current().IsLoggedIn()
}

func (t *MeowTransport) HasSession() bool {
	return t.current().Store.ID != nil
}

func (t *MeowTransport) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return t.current().GetQRChannel(ctx)
}

func (t *MeowTransport) PairPhone(ctx context.Context, phone string) (string, error) {
	return t.current().PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome ("+runtime.GOOS+")")
}

func (t *MeowTransport) SendPresence(ctx context.Context, available bool) error {
	client := t.current()
	if !client.IsConnected() {
		return ErrNotConnected
	}
	if available {
		return client.SendPresence(ctx, types.PresenceAvailable)
	}
	return client.SendPresence(ctx, types.PresenceUnavailable)
}

func (t *MeowTransport) SendText(ctx context.Context, to types.JID, text string) (string, error) {
	client := t.current()
	if !client.IsConnected() {
		return "", ErrNotConnected
	}
	msgExtra := whatsmeow.SendRequestExtra{ID: client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	if _, err := client.SendMessage(ctx, to, msgContent, msgExtra); err != nil {
		return "", err
	}
	return string(msgExtra.ID), nil
}

func (t *MeowTransport) SendImage(ctx context.Context, to types.JID, image []byte, mimeType, caption string) (string, error) {
	client := t.current()
	if !client.IsConnected() {
		return "", ErrNotConnected
	}

	if t.cfg.Compress {
		resizeDecode, err := imgconv.Decode(bytes.NewReader(image))
		if err != nil {
			return "", fmt.Errorf("decode image for resize: %w", err)
		}
		resizeEncode := new(bytes.Buffer)
		err = imgconv.Write(resizeEncode,
			imgconv.Resize(resizeDecode, &imgconv.ResizeOption{Width: 1024}),
			&imgconv.FormatOption{})
		if err != nil {
			return "", fmt.Errorf("encode resized image: %w", err)
		}
		image = resizeEncode.Bytes()
	}

	thumbDecode, err := imgconv.Decode(bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("decode image for thumbnail: %w", err)
	}
	thumbEncode := new(bytes.Buffer)
	err = imgconv.Write(thumbEncode,
		imgconv.Resize(thumbDecode, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	uploaded, err := client.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
			JPEGThumbnail: thumbEncode.Bytes(),
		},
	}
	if _, err := client.SendMessage(ctx, to, msgContent, msgExtra); err != nil {
		return "", err
	}
	return string(msgExtra.ID), nil
}

func (t *MeowTransport) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	client := t.current()
	if !client.IsConnected() {
		return nil, ErrNotConnected
	}
	return client.GetJoinedGroups(ctx)
}

func (t *MeowTransport) GroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	client := t.current()
	if !client.IsConnected() {
		return nil, ErrNotConnected
	}
	return client.GetGroupInfo(ctx, jid)
}

// ContactName resolves the best available display name for a user JID.
func (t *MeowTransport) ContactName(ctx context.Context, jid types.JID) (string, error) {
	client := t.current()
	if client.Store == nil || client.Store.Contacts == nil {
		return "", errors.New("contacts store not available")
	}
	info, err := client.Store.Contacts.GetContact(ctx, jid.ToNonAD())
	if err != nil {
		return "", err
	}
	return bestContactName(info), nil
}

func (t *MeowTransport) AllContacts(ctx context.Context) (map[types.JID]types.ContactInfo, error) {
	client := t.current()
	if client.Store == nil || client.Store.Contacts == nil {
		return nil, errors.New("contacts store not available")
	}
	return client.Store.Contacts.GetAllContacts(ctx)
}

func (t *MeowTransport) ParseWebMessage(chat types.JID, webMsg *waWeb.WebMessageInfo) (*events.Message, error) {
	return t.current().ParseWebMessage(chat, webMsg)
}

func bestContactName(info types.ContactInfo) string {
	if !info.Found {
		return ""
	}
	if s := strings.TrimSpace(info.FullName); s != "" {
		return s
	}
	if s := strings.TrimSpace(info.FirstName); s != "" {
		return s
	}
	if s := strings.TrimSpace(info.BusinessName); s != "" {
		return s
	}
	if s := strings.TrimSpace(info.PushName); s != "" && s != "-" {
		return s
	}
	return ""
}
