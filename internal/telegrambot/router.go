package telegrambot

import (
	"errors"
	"fmt"

	"github.com/MrPunder/client-relay-bot/internal/config"
	"github.com/MrPunder/client-relay-bot/internal/models"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	tele "gopkg.in/telebot.v3"
)

// firstChars возвращает первые n рун строки
func firstChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// relayCaption формирует подпись пересылаемого сообщения: алиас, иначе
// первые три символа имени отправителя, иначе синтетическое имя
func relayCaption(client *models.Client, sender *tele.User) string {
	name := client.Alias
	if name == "" && sender != nil {
		switch {
		case sender.Username != "":
			name = firstChars(sender.Username, 3)
		case sender.FirstName != "":
			name = firstChars(sender.FirstName, 3)
		}
	}
	if name == "" {
		name = fmt.Sprintf("User%d", client.TelegramID)
	}
	return fmt.Sprintf("📨 %s (ID: %s)", name, client.Id)
}

// buildOutbound собирает исходящее сообщение того же вида, что входящее,
// с подписью. Для текста подпись становится префиксом.
func buildOutbound(m *tele.Message, caption string) interface{} {
	switch {
	case m.Photo != nil:
		return &tele.Photo{File: m.Photo.File, Caption: caption}
	case m.Video != nil:
		return &tele.Video{File: m.Video.File, Caption: caption}
	case m.Audio != nil:
		return &tele.Audio{File: m.Audio.File, Caption: caption}
	case m.Voice != nil:
		return &tele.Voice{File: m.Voice.File, Caption: caption}
	case m.Document != nil:
		return &tele.Document{File: m.Document.File, FileName: m.Document.FileName, Caption: caption}
	default:
		return fmt.Sprintf("%s:\n%s", caption, m.Text)
	}
}

// handleMessage — общий вход для сообщений любого вида
func (rb *RelayBot) handleMessage(c tele.Context) error {
	switch {
	case isPrivate(c):
		return rb.handlePrivateMessage(c)
	case isGroup(c):
		return rb.handleGroupMessage(c)
	default:
		return nil
	}
}

// handlePrivateMessage маршрутизирует личное сообщение по статусу отправителя
func (rb *RelayBot) handlePrivateMessage(c tele.Context) error {
	sender := c.Sender()

	if rb.storage.IsAdmin(sender.ID) {
		return rb.handleAdminPrivate(c)
	}

	client, err := rb.storage.FindClientByTelegramID(sender.ID)
	if err == nil && client.Status == models.StatusApproved {
		return rb.relayFromClient(c, client)
	}

	if rb.storage.IsPending(sender.ID) {
		return c.Send("Ваша заявка еще на рассмотрении. Мы сообщим, когда доступ будет открыт.")
	}

	return rb.registerPending(c)
}

// registerPending заводит заявку на доступ и уведомляет администраторов
func (rb *RelayBot) registerPending(c tele.Context) error {
	sender := c.Sender()
	pending := &models.PendingClient{
		TelegramID: sender.ID,
		Username:   sender.Username,
		FirstName:  sender.FirstName,
		Timestamp:  models.GetCurrentTime(),
	}

	if err := rb.storage.RegisterPending(pending); err != nil {
		rb.logger.Errorf("Ошибка регистрации заявки от %d: %v", sender.ID, err)
		return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
	}

	rb.logger.Infof("Новая заявка на доступ от %s (telegram %d)", pending.DisplayName(), sender.ID)
	rb.notifyAdminsOfPending(pending)

	return c.Send("Заявка на доступ отправлена. Мы сообщим, когда администратор ее рассмотрит.")
}

// notifyAdminsOfPending рассылает заявку администраторам. Неудача доставки
// одному администратору не мешает остальным.
func (rb *RelayBot) notifyAdminsOfPending(pending *models.PendingClient) {
	text := fmt.Sprintf("Новая заявка на доступ от %s (telegram %d)",
		pending.DisplayName(), pending.TelegramID)

	for _, adminID := range rb.storage.Admins() {
		if _, err := rb.api.Send(tele.ChatID(adminID), text, pendingKeyboard(pending.TelegramID)); err != nil {
			rb.logger.Errorf("Не удалось уведомить администратора %d о заявке %d: %v",
				adminID, pending.TelegramID, err)
		}
	}
}

// relayFromClient доставляет сообщение клиента по назначениям. Связка
// "сообщение -> клиент" записывается только после успешной доставки.
func (rb *RelayBot) relayFromClient(c tele.Context, client *models.Client) error {
	out := buildOutbound(c.Message(), relayCaption(client, c.Sender()))

	var destinations []int64
	if rb.config.Mode == config.RoutingModeAdmins {
		destinations = rb.storage.Admins()
	} else {
		destinations = rb.storage.Assignments(client.Id)
		if len(destinations) == 0 {
			// Клиенту еще не назначили группу, сообщение уходит администраторам
			destinations = rb.storage.Admins()
		}
	}

	if len(destinations) == 0 {
		rb.logger.Errorf("Нет получателей для клиента %s", client.Id)
		return c.Send("Сообщение пока некому доставить. Пожалуйста, попробуйте позже.")
	}

	delivered := 0
	for _, destID := range destinations {
		msg, err := rb.api.Send(tele.ChatID(destID), out)
		if err != nil {
			rb.logger.Errorf("Ошибка доставки сообщения клиента %s в чат %d: %v", client.Id, destID, err)
			continue
		}
		delivered++
		if err := rb.storage.AddMessageLink(destID, msg.ID, client.Id); err != nil {
			rb.logger.Errorf("Ошибка записи связки %d_%d -> %s: %v", destID, msg.ID, client.Id, err)
		}
	}

	if delivered == 0 {
		return c.Send("Не удалось доставить сообщение. Пожалуйста, попробуйте позже.")
	}
	return c.Send("Сообщение передано команде.")
}

// handleAdminPrivate обрабатывает личное сообщение администратора: ответ на
// пересланное сообщение или ответ по ранее поставленному маркеру
func (rb *RelayBot) handleAdminPrivate(c tele.Context) error {
	m := c.Message()

	if m.ReplyTo != nil {
		clientID, ok := rb.storage.LookupMessageLink(c.Chat().ID, m.ReplyTo.ID)
		if ok {
			return rb.deliverToClient(c, clientID)
		}
	}

	if clientID, ok := rb.takeReplyTarget(c.Sender().ID); ok {
		return rb.deliverToClient(c, clientID)
	}

	return c.Send("Используйте /help для списка команд или ответьте на пересланное сообщение.")
}

// deliverToClient отправляет содержимое текущего сообщения клиенту
func (rb *RelayBot) deliverToClient(c tele.Context, clientID string) error {
	client, err := rb.storage.GetClient(clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return c.Send("Клиент этой переписки удален.")
		}
		rb.logger.Errorf("Ошибка поиска клиента %s: %v", clientID, err)
		return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
	}

	out := buildOutbound(c.Message(), "💬 Ответ от команды")
	if _, err := rb.api.Send(tele.ChatID(client.TelegramID), out); err != nil {
		rb.logger.Errorf("Ошибка доставки ответа клиенту %s: %v", clientID, err)
		return c.Send("Не удалось доставить ответ клиенту.")
	}

	return c.Send(fmt.Sprintf("Ответ доставлен клиенту %s.", clientID))
}

// handleGroupMessage возвращает ответ из группы исходному клиенту. Сообщения
// без связки игнорируются, группа не транслируется клиентам целиком.
func (rb *RelayBot) handleGroupMessage(c tele.Context) error {
	// Собственные сообщения бота не маршрутизируются
	if c.Sender() != nil && c.Sender().ID == rb.selfID() {
		return nil
	}
	if !rb.storage.HasGroup(c.Chat().ID) {
		return nil
	}

	m := c.Message()
	if m.ReplyTo == nil {
		return nil
	}

	clientID, ok := rb.storage.LookupMessageLink(c.Chat().ID, m.ReplyTo.ID)
	if !ok {
		return nil
	}

	return rb.deliverToClient(c, clientID)
}

// selfID возвращает Telegram ID самого бота
func (rb *RelayBot) selfID() int64 {
	if rb.bot == nil || rb.bot.Me == nil {
		return 0
	}
	return rb.bot.Me.ID
}

// registerGroup регистрирует текущий групповой чат как получателя. Название
// берется из чата, при неудаче запрашивается через транспорт, затем
// подставляется синтетическое.
func (rb *RelayBot) registerGroup(c tele.Context) error {
	chatID := c.Chat().ID

	title := c.Chat().Title
	if title == "" {
		if chat, err := rb.api.ChatByID(chatID); err == nil {
			title = chat.Title
		} else {
			rb.logger.Errorf("Не удалось запросить название чата %d: %v", chatID, err)
		}
	}
	if title == "" {
		title = fmt.Sprintf("Group%d", chatID)
	}

	if err := rb.storage.AddGroup(chatID, title); err != nil {
		rb.logger.Errorf("Ошибка регистрации группы %d: %v", chatID, err)
		return c.Send("Не удалось зарегистрировать группу. Пожалуйста, попробуйте позже.")
	}

	rb.logger.Infof("Зарегистрирована группа %q (%d)", title, chatID)
	return c.Send(fmt.Sprintf("Группа %q зарегистрирована. Назначайте клиентов через /assigngroup <id клиента>.", title))
}

// handleAddedToGroup приветствует чат, в который добавили бота
func (rb *RelayBot) handleAddedToGroup(c tele.Context) error {
	rb.logger.Infof("Бот добавлен в чат %d", c.Chat().ID)
	return c.Send(
		"Привет! Чтобы этот чат получал сообщения клиентов, зарегистрируйте его кнопкой или командой /addgroup.",
		addCurrentChatKeyboard(),
	)
}
