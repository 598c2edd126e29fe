package whatsapp

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
)

// handleEvent is the single transport event entry point. Handler errors are
// logged and swallowed; an event must never take the router down.
func (s *Service) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		s.onConnected()

	case *events.PairSuccess:
		s.setStatus(StatusAuthenticated, "Device paired")

	case *events.StreamReplaced:
		s.handleDisconnect(ReasonConflict)

	case *events.LoggedOut:
		s.handleDisconnect(ReasonLoggedOut)

	case *events.KeepAliveTimeout:
		s.mu.Lock()
		s.lastTimeout = time.Now()
		s.probeFailures++
		s.mu.Unlock()
		log.Print(nil).WithField("error_count", evt.ErrorCount).Warn("keepalive timeout")

	case *events.Disconnected:
		s.handleDisconnect(s.classifyDisconnect())

	case *events.ConnectFailure:
		log.Print(nil).Warn(fmt.Sprintf("connect failure: reason=%s, message=%s", evt.Reason, evt.Message))
		s.handleDisconnect(ReasonGeneric)

	case *events.TemporaryBan:
		s.setStatus(StatusError, fmt.Sprintf("Temporarily banned: reason=%s, expires=%s", evt.Code, evt.Expire))

	case *events.Message:
		s.handleMessage(evt)

	case *events.HistorySync:
		s.handleHistorySync(evt)

	case *events.JoinedGroup:
		s.upsertGroup(&evt.GroupInfo)
		s.publishChatsUpdated()
		s.persistDirectory()

	case *events.GroupInfo:
		s.handleGroupInfo(evt)
	}
}

func (s *Service) onConnected() {
	s.mu.Lock()
	s.attempts = make(map[DisconnectReason]int)
	s.probeFailures = 0
	s.lastTimeout = time.Time{}
	s.qrDataURL = ""
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	s.setStatus(StatusConnected, "Connected to WhatsApp")
	go s.bootstrap(context.Background())
}

// classifyDisconnect attributes a socket closure that arrived shortly after a
// keepalive timeout to the timeout itself. Everything else is generic.
func (s *Service) classifyDisconnect() DisconnectReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastTimeout.IsZero() && time.Since(s.lastTimeout) < s.cfg.TimeoutAttribution {
		return ReasonTimeout
	}
	return ReasonGeneric
}

// handleDisconnect advances the recovery schedule for the given reason. Each
// reason keeps its own attempt counter; counters reset on a successful
// connect.
func (s *Service) handleDisconnect(reason DisconnectReason) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.attempts[reason]++
	attempt := s.attempts[reason]
	s.mu.Unlock()

	plan := planReconnect(reason, attempt, s.cfg.Backoff)
	log.Print(nil).
		WithField("reason", reason.String()).
		WithField("attempt", attempt).
		Warn(plan.Message)

	if plan.Terminal != "" {
		if plan.ClearAuth {
			s.wipeSession(context.Background())
		}
		s.setStatus(plan.Terminal, plan.Message)
		return
	}

	s.setStatus(StatusDisconnected, plan.Message)
	delay := plan.Delay
	if plan.Jitter {
		delay = applyJitter(delay, s.cfg.Backoff.JitterFraction)
	}
	s.scheduleReconnect(delay, plan.ClearAuth)
}

// scheduleReconnect arms the single reconnect timer slot. A newly scheduled
// reconnect always replaces a pending one.
func (s *Service) scheduleReconnect(delay time.Duration, clearAuth bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.runReconnect(clearAuth)
	})
}

func (s *Service) runReconnect(clearAuth bool) {
	s.mu.Lock()
	s.reconnectTimer = nil
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	ctx := context.Background()
	if clearAuth {
		if err := s.transport.ClearCredentials(ctx); err != nil {
			log.Print(nil).Error("credential wipe before reconnect failed: " + err.Error())
		}
	}

	s.setStatus(StatusInitializing, "Reconnecting to WhatsApp")

	if !s.transport.HasSession() {
		if err := s.startQRLoop(ctx); err != nil {
			log.Print(nil).Error("QR channel unavailable during reconnect: " + err.Error())
		}
	}
	if err := s.transport.Connect(); err != nil {
		log.Print(nil).Error("reconnect failed: " + err.Error())
		s.handleDisconnect(ReasonGeneric)
	}
}

// wipeSession clears credentials, the cache and the snapshot files. The
// monitored keyword list is kept.
func (s *Service) wipeSession(ctx context.Context) {
	if err := s.transport.ClearCredentials(ctx); err != nil {
		log.Print(nil).Error("credential wipe failed: " + err.Error())
	}
	s.cache.Clear()
	if err := s.store.Clear(); err != nil {
		log.Print(nil).Warn("snapshot clear failed: " + err.Error())
	}
}

// handleMessage normalizes one live message: cache append, chat discovery,
// preview update, notifications and snapshot writes.
func (s *Service) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		log.Print(nil).Warn("message event without payload, skipped")
		return
	}
	info := evt.Info
	if info.ID == "" || info.Chat.IsEmpty() {
		log.Print(nil).Warn("message event without id or chat, skipped")
		return
	}

	rec := s.normalizeMessage(info, ExtractMessageText(evt.Message), MessageKind(evt.Message), IsMediaMessage(evt.Message))
	s.cache.AppendMessage(rec)

	chatName := rec.GroupName
	if !rec.IsGroup {
		chatName = rec.ContactName
	}
	s.cache.TouchChat(rec.ChatID, chatName, PreviewText(rec.Body, s.cfg.PreviewMaxGraphemes), rec.Timestamp)

	s.notifier.Publish(EventMessageReceived, map[string]interface{}{
		"id":        rec.ID,
		"chat_id":   rec.ChatID,
		"from":      rec.From,
		"body":      rec.Body,
		"type":      rec.Type,
		"is_group":  rec.IsGroup,
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339),
	})

	if keyword, ok := s.keywords.Match(rec.Body); ok {
		s.notifier.Publish(EventMessageMonitored, map[string]interface{}{
			"keyword":   keyword,
			"id":        rec.ID,
			"chat_id":   rec.ChatID,
			"from":      rec.From,
			"body":      rec.Body,
			"is_group":  rec.IsGroup,
			"timestamp": rec.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	s.persistMessages()
	s.persistDirectory()
}

// normalizeMessage builds a MessageRecord and resolves display names. For a
// private chat the preference order is known directory name, contact store,
// push name, then the bare number.
func (s *Service) normalizeMessage(info types.MessageInfo, body string, kind string, media bool) MessageRecord {
	chatID := info.Chat.String()
	rec := MessageRecord{
		ID:        string(info.ID),
		Body:      body,
		From:      info.Sender.ToNonAD().String(),
		FromMe:    info.IsFromMe,
		Timestamp: info.Timestamp,
		Type:      kind,
		IsGroup:   info.IsGroup,
		ChatID:    chatID,
		IsMedia:   media,
	}

	if existing, ok := s.cache.Chat(chatID); ok && existing.Name != "" {
		if rec.IsGroup {
			rec.GroupName = existing.Name
		} else {
			rec.ContactName = existing.Name
		}
		return rec
	}

	if rec.IsGroup {
		return rec
	}

	if name, err := s.transport.ContactName(context.Background(), info.Chat); err == nil && name != "" {
		rec.ContactName = name
	} else if info.PushName != "" && !info.IsFromMe {
		rec.ContactName = info.PushName
	} else {
		rec.ContactName = info.Chat.User
	}
	return rec
}

// handleHistorySync replays server-provided history into the cache. History
// items never trigger live notifications and malformed entries are skipped
// one by one.
func (s *Service) handleHistorySync(evt *events.HistorySync) {
	if evt == nil || evt.Data == nil {
		return
	}

	appended := 0
	for _, conv := range evt.Data.GetConversations() {
		if conv == nil || conv.GetID() == "" {
			continue
		}
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			log.Print(nil).Warn("history conversation with bad jid skipped: " + err.Error())
			continue
		}
		for _, histMsg := range conv.GetMessages() {
			webMsg := histMsg.GetMessage()
			if webMsg == nil {
				continue
			}
			parsed, err := s.transport.ParseWebMessage(chatJID, webMsg)
			if err != nil || parsed == nil || parsed.Message == nil {
				continue
			}
			rec := s.normalizeMessage(parsed.Info, ExtractMessageText(parsed.Message), MessageKind(parsed.Message), IsMediaMessage(parsed.Message))
			if rec.ID == "" {
				continue
			}
			s.cache.AppendMessage(rec)
			s.cache.TouchChat(rec.ChatID, "", PreviewText(rec.Body, s.cfg.PreviewMaxGraphemes), rec.Timestamp)
			appended++
		}
	}

	if appended > 0 {
		log.Print(nil).WithField("messages", appended).Info("history sync merged into cache")
		s.persistMessages()
		s.persistDirectory()
	}
}

func (s *Service) handleGroupInfo(evt *events.GroupInfo) {
	if evt == nil || evt.JID.IsEmpty() {
		return
	}
	group, err := s.transport.GroupInfo(context.Background(), evt.JID)
	if err != nil {
		log.Print(nil).Warn("group info refresh failed: " + err.Error())
		return
	}
	s.upsertGroup(group)
	s.persistDirectory()
}
