package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
)

// Notification event names published through the Notifier.
const (
	EventConnectionStatus = "connection.status"
	EventConnectionQR     = "connection.qr"
	EventMessageReceived  = "message.received"
	EventMessageMonitored = "message.monitored"
	EventChatsUpdated     = "chats.updated"
)

// Notifier is the outbound event channel. The webhook engine implements it;
// tests use an in-memory recorder.
type Notifier interface {
	Publish(event string, data map[string]interface{})
}

// ErrNotReady is returned by operations that require a live, logged-in
// session.
var ErrNotReady = errors.New("whatsapp session is not ready")

const statusHistoryCap = 50

// Service owns the connection lifecycle: the state machine, the event router,
// the recovery loop, the chat cache and the session snapshots. It is
// constructed explicitly and injected where needed; there is no package-level
// instance.
type Service struct {
	cfg       Config
	transport Transport
	store     *SessionStore
	notifier  Notifier

	cache    *ChatCache
	keywords *KeywordSet

	presenceLimit *rate.Limiter

	mu             sync.Mutex
	status         ConnectionStatus
	history        []StatusChange
	qrDataURL      string
	qrCancel       context.CancelFunc
	reconnectTimer *time.Timer
	attempts       map[DisconnectReason]int
	probeFailures  int
	lastTimeout    time.Time
	handlerID      uint32
	started        bool
}

// NewService wires the connection service from its dependencies. Start must
// be called before the service handles traffic.
func NewService(cfg Config, transport Transport, store *SessionStore, notifier Notifier) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:           cfg,
		transport:     transport,
		store:         store,
		notifier:      notifier,
		cache:         NewChatCache(cfg.MessageCapPerChat, cfg.RetentionWindow),
		keywords:      NewKeywordSet(),
		presenceLimit: rate.NewLimiter(rate.Every(cfg.PresenceCooldown), 1),
		status:        StatusDisconnected,
		attempts:      make(map[DisconnectReason]int),
	}
}

// Start loads the persisted snapshots, registers the event handler and opens
// the transport connection. Snapshot load failures are logged and ignored so
// a corrupt file never blocks startup.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("service already started")
	}
	s.started = true
	s.mu.Unlock()

	s.restoreSnapshots()

	s.mu.Lock()
	s.handlerID = s.transport.AddEventHandler(s.handleEvent)
	s.mu.Unlock()

	s.setStatus(StatusInitializing, "Connecting to WhatsApp")

	if !s.transport.HasSession() {
		if err := s.startQRLoop(ctx); err != nil {
			s.setStatus(StatusError, "QR channel unavailable: "+err.Error())
			return err
		}
	}

	if err := s.transport.Connect(); err != nil {
		s.setStatus(StatusError, "Connection failed: "+err.Error())
		return err
	}
	return nil
}

// Stop tears the service down: pending reconnects are cancelled, the handler
// is removed and the socket is closed. The cache and snapshots stay intact.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.qrCancel != nil {
		s.qrCancel()
		s.qrCancel = nil
	}
	handlerID := s.handlerID
	s.mu.Unlock()

	s.transport.RemoveEventHandler(handlerID)
	s.transport.Disconnect()
	s.setStatus(StatusDisconnected, "Service stopped")
}

// Restart drops the current socket, resets the recovery counters and starts
// a fresh connection attempt with the existing credentials.
func (s *Service) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.attempts = make(map[DisconnectReason]int)
	s.probeFailures = 0
	s.mu.Unlock()

	s.transport.Disconnect()
	s.setStatus(StatusInitializing, "Restarting connection")

	if !s.transport.HasSession() {
		if err := s.startQRLoop(ctx); err != nil {
			s.setStatus(StatusError, "QR channel unavailable: "+err.Error())
			return err
		}
	}
	if err := s.transport.Connect(); err != nil {
		s.setStatus(StatusError, "Connection failed: "+err.Error())
		return err
	}
	return nil
}

// ClearAuth wipes the session: transport credentials, the in-memory cache and
// the snapshot files. Monitored keywords survive so a re-pair resumes the
// same watch list.
func (s *Service) ClearAuth(ctx context.Context) error {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.attempts = make(map[DisconnectReason]int)
	s.qrDataURL = ""
	s.mu.Unlock()

	if err := s.transport.ClearCredentials(ctx); err != nil {
		return err
	}
	s.cache.Clear()
	if err := s.store.Clear(); err != nil {
		log.Print(nil).Warn("snapshot clear failed: " + err.Error())
	}
	s.setStatus(StatusDisconnected, "Authentication cleared")
	return nil
}

// Status returns the current connection status.
func (s *Service) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot assembles the status/metrics view served by the control API.
func (s *Service) Snapshot() StatusSnapshot {
	groups, privateChats, messages := s.cache.Counts()

	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := 0
	for _, n := range s.attempts {
		attempts += n
	}
	history := make([]StatusChange, len(s.history))
	copy(history, s.history)

	return StatusSnapshot{
		Status:            s.status,
		IsReady:           s.status.Ready(),
		GroupsCount:       groups,
		PrivateChatsCount: privateChats,
		MessagesCount:     messages,
		MonitoredKeywords: s.keywords.List(),
		QRAvailable:       s.qrDataURL != "",
		ReconnectAttempts: attempts,
		ProbeFailures:     s.probeFailures,
		History:           history,
	}
}

// QR returns the current pairing QR code as a PNG data URL.
func (s *Service) QR() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qrDataURL == "" {
		return "", errors.New("no QR code available")
	}
	return s.qrDataURL, nil
}

// PairPhone requests a pairing code for the given phone number as an
// alternative to scanning the QR code.
func (s *Service) PairPhone(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", errors.New("phone number is required")
	}
	return s.transport.PairPhone(ctx, phone)
}

// SendText sends a plain text message and records it in the chat buffer.
func (s *Service) SendText(ctx context.Context, to string, text string) (string, error) {
	if !s.Status().Ready() {
		return "", ErrNotReady
	}
	jid := ComposeJID(to)
	id, err := s.transport.SendText(ctx, jid, text)
	if err != nil {
		return "", err
	}
	s.recordOutgoing(jid, id, text, "text", false)
	return id, nil
}

// SendImage uploads and sends an image with an optional caption.
func (s *Service) SendImage(ctx context.Context, to string, image []byte, mimeType, caption string) (string, error) {
	if !s.Status().Ready() {
		return "", ErrNotReady
	}
	jid := ComposeJID(to)
	id, err := s.transport.SendImage(ctx, jid, image, mimeType, caption)
	if err != nil {
		return "", err
	}
	body := caption
	if body == "" {
		body = "[Image]"
	}
	s.recordOutgoing(jid, id, body, "image", true)
	return id, nil
}

func (s *Service) recordOutgoing(to types.JID, id, body, kind string, media bool) {
	chatID := to.String()
	now := time.Now()
	s.cache.AppendMessage(MessageRecord{
		ID:        id,
		Body:      body,
		From:      "me",
		FromMe:    true,
		Timestamp: now,
		Type:      kind,
		IsGroup:   IsGroupJID(chatID),
		ChatID:    chatID,
		IsMedia:   media,
	})
	s.cache.TouchChat(chatID, "", PreviewText(body, s.cfg.PreviewMaxGraphemes), now)
	s.persistMessages()
	s.persistDirectory()
}

// Groups returns the cached group directory.
func (s *Service) Groups() []ChatInfo {
	return s.cache.Groups()
}

// PrivateChats returns the cached private-chat directory.
func (s *Service) PrivateChats() []ChatInfo {
	return s.cache.PrivateChats()
}

// Messages returns the buffered messages for one chat, newest first.
func (s *Service) Messages(chatID string) []MessageRecord {
	return s.cache.Messages(ComposeJID(chatID).String())
}

// RecentMessages returns the newest messages across all chats.
func (s *Service) RecentMessages(limit int) []MessageRecord {
	return s.cache.RecentMessages(limit)
}

// Keywords returns the monitored keyword list.
func (s *Service) Keywords() []string {
	return s.keywords.List()
}

// AddKeyword registers a monitored keyword and persists the directory.
func (s *Service) AddKeyword(keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, errors.New("keyword is required")
	}
	added := s.keywords.Add(keyword)
	if added {
		s.persistDirectory()
	}
	return added, nil
}

// RemoveKeyword drops a monitored keyword and persists the directory.
func (s *Service) RemoveKeyword(keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, errors.New("keyword is required")
	}
	removed := s.keywords.Remove(keyword)
	if removed {
		s.persistDirectory()
	}
	return removed, nil
}

// RefreshChats re-reads the joined group list from the transport and emits a
// directory update.
func (s *Service) RefreshChats(ctx context.Context) error {
	if !s.Status().Ready() {
		return ErrNotReady
	}
	groups, err := s.transport.JoinedGroups(ctx)
	if err != nil {
		return fmt.Errorf("fetch joined groups: %w", err)
	}
	for _, group := range groups {
		s.upsertGroup(group)
	}
	s.publishChatsUpdated()
	s.persistDirectory()
	return nil
}

// Probe is the periodic liveness check. While connected it verifies the
// socket and, at most once per cooldown, sends a presence update. A failed
// probe only increments a counter; disconnect events drive recovery.
func (s *Service) Probe(ctx context.Context) {
	if !s.Status().Ready() {
		return
	}
	if !s.transport.IsConnected() {
		s.mu.Lock()
		s.probeFailures++
		failures := s.probeFailures
		s.mu.Unlock()
		log.Print(nil).WithField("probe_failures", failures).Warn("liveness probe found socket down")
		return
	}
	if s.presenceLimit.Allow() {
		if err := s.transport.SendPresence(ctx, true); err != nil {
			s.mu.Lock()
			s.probeFailures++
			s.mu.Unlock()
			log.Print(nil).Warn("presence probe failed: " + err.Error())
		}
	}
}

// EvictCache applies the retention policy and persists the pruned buffers.
func (s *Service) EvictCache(now time.Time) {
	removedMessages, removedChats := s.cache.Evict(now)
	if removedMessages > 0 || removedChats > 0 {
		log.Print(nil).
			WithField("removed_messages", removedMessages).
			WithField("removed_chats", removedChats).
			Info("cache eviction pass complete")
		s.persistMessages()
		s.persistDirectory()
	}
}

func (s *Service) restoreSnapshots() {
	if snapshot, err := s.store.LoadDirectory(); err != nil {
		log.Print(nil).Warn("session snapshot load failed: " + err.Error())
	} else if snapshot != nil {
		s.cache.ImportDirectory(snapshot.Groups, snapshot.PrivateChats)
		s.keywords.Replace(snapshot.MonitoredKeywords)
	}
	if messages, err := s.store.LoadMessages(); err != nil {
		log.Print(nil).Warn("message cache load failed: " + err.Error())
	} else if messages != nil {
		s.cache.ImportMessages(messages)
	}
}

func (s *Service) persistDirectory() {
	snapshot := SessionSnapshot{
		Groups:            s.cache.Groups(),
		PrivateChats:      s.cache.PrivateChats(),
		MonitoredKeywords: s.keywords.List(),
		Timestamp:         time.Now().UTC(),
	}
	if err := s.store.SaveDirectory(snapshot); err != nil {
		log.Print(nil).Warn("session snapshot write failed: " + err.Error())
	}
}

func (s *Service) persistMessages() {
	if err := s.store.SaveMessages(s.cache.ExportMessages()); err != nil {
		log.Print(nil).Warn("message cache write failed: " + err.Error())
	}
}

// setStatus records a transition in the history ring and publishes it.
func (s *Service) setStatus(status ConnectionStatus, message string) {
	s.mu.Lock()
	s.status = status
	s.history = append(s.history, StatusChange{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if len(s.history) > statusHistoryCap {
		s.history = s.history[len(s.history)-statusHistoryCap:]
	}
	s.mu.Unlock()

	log.Print(nil).WithField("status", string(status)).Info(message)
	s.notifier.Publish(EventConnectionStatus, map[string]interface{}{
		"status":  string(status),
		"ready":   status.Ready(),
		"message": message,
	})
}

func (s *Service) startQRLoop(ctx context.Context) error {
	qrCtx, cancel := context.WithCancel(ctx)
	qrChan, err := s.transport.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	if s.qrCancel != nil {
		s.qrCancel()
	}
	s.qrCancel = cancel
	s.mu.Unlock()

	go s.consumeQRChannel(qrChan)
	return nil
}

func (s *Service) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			dataURL, err := QRCodeDataURL(item.Code)
			if err != nil {
				log.Print(nil).Error("QR render failed: " + err.Error())
				continue
			}
			s.mu.Lock()
			s.qrDataURL = dataURL
			s.mu.Unlock()
			s.setStatus(StatusQRReady, "Scan the QR code to pair")
			s.notifier.Publish(EventConnectionQR, map[string]interface{}{
				"qr":      dataURL,
				"timeout": item.Timeout.Seconds(),
			})
		case whatsmeow.QRChannelSuccess.Event:
			s.mu.Lock()
			s.qrDataURL = ""
			s.mu.Unlock()
			s.setStatus(StatusAuthenticated, "Pairing complete")
		case "error":
			s.mu.Lock()
			s.qrDataURL = ""
			s.mu.Unlock()
			message := "QR pairing failed"
			if item.Error != nil {
				message += ": " + item.Error.Error()
			}
			s.setStatus(StatusError, message)
		default:
			// timeout and unknown-client events end the pairing round
			s.mu.Lock()
			s.qrDataURL = ""
			s.mu.Unlock()
			s.setStatus(StatusError, "QR pairing ended: "+item.Event)
		}
	}
}

// bootstrap runs after the transport reports a live session: presence, a
// settle pause, then parallel group and contact discovery.
func (s *Service) bootstrap(ctx context.Context) {
	if err := s.transport.SendPresence(ctx, true); err != nil {
		log.Print(nil).Warn("initial presence failed: " + err.Error())
	}

	select {
	case <-time.After(s.cfg.SettleTimeout):
	case <-ctx.Done():
		return
	}

	var groups []*types.GroupInfo
	var contacts map[types.JID]types.ContactInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		groups, err = s.transport.JoinedGroups(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		contacts, err = s.transport.AllContacts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Print(nil).Warn("chat discovery incomplete: " + err.Error())
	}

	for _, group := range groups {
		s.upsertGroup(group)
	}
	s.refreshContactNames(contacts)

	s.publishChatsUpdated()
	s.persistDirectory()
}

// refreshContactNames backfills names for already-known private chats. It
// never creates directory entries; private chats are discovered from traffic.
func (s *Service) refreshContactNames(contacts map[types.JID]types.ContactInfo) {
	for jid, info := range contacts {
		chatID := jid.ToNonAD().String()
		chat, ok := s.cache.Chat(chatID)
		if !ok || chat.IsGroup {
			continue
		}
		if name := bestContactName(info); name != "" && name != chat.Name {
			chat.Name = name
			s.cache.UpsertChat(chat)
		}
	}
}

func (s *Service) upsertGroup(group *types.GroupInfo) {
	if group == nil {
		return
	}
	chatID := group.JID.String()
	existing, _ := s.cache.Chat(chatID)

	info := ChatInfo{
		ID:               chatID,
		Name:             group.Name,
		LastMessage:      existing.LastMessage,
		Timestamp:        existing.Timestamp,
		IsGroup:          true,
		ParticipantCount: len(group.Participants),
		Description:      group.Topic,
	}
	if info.Name == "" {
		info.Name = existing.Name
	}
	if info.Timestamp.IsZero() {
		info.Timestamp = group.GroupCreated
	}
	s.cache.UpsertChat(info)
}

func (s *Service) publishChatsUpdated() {
	groups, privateChats, _ := s.cache.Counts()
	s.notifier.Publish(EventChatsUpdated, map[string]interface{}{
		"groups":        groups,
		"private_chats": privateChats,
	})
}
