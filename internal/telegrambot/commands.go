package telegrambot

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrPunder/client-relay-bot/internal/models"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	tele "gopkg.in/telebot.v3"
)

const adminHelp = `Команды администратора:
/pending — список заявок
/approve <telegram id> — одобрить заявку
/reject <telegram id> — отклонить заявку
/listclients — список клиентов
/getinfo <id клиента> — информация о клиенте
/setalias <id клиента> <алиас> — задать алиас
/addgroup — зарегистрировать текущую группу (выполняется в группе)
/assigngroup <id клиента> — назначить клиента на текущую группу
/setgroupname <id группы> <название> — переименовать группу
/invite — QR-код со ссылкой на бота
Ответ клиенту: ответьте на пересланное сообщение или нажмите «Ответить» в карточке клиента.`

// handleStart обрабатывает команду /start
func (rb *RelayBot) handleStart(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}

	sender := c.Sender()
	rb.logger.Infof("Пользователь %d запустил бота", sender.ID)

	if rb.storage.IsAdmin(sender.ID) {
		return c.Send("Панель администратора:", adminPanelKeyboard())
	}

	client, err := rb.storage.FindClientByTelegramID(sender.ID)
	if err == nil && client.Status == models.StatusApproved {
		return c.Send("Привет! Пишите сюда, ваши сообщения будут переданы команде.")
	}

	if rb.storage.IsPending(sender.ID) {
		return c.Send("Ваша заявка еще на рассмотрении. Мы сообщим, когда доступ будет открыт.")
	}

	return rb.registerPending(c)
}

// handleHelp обрабатывает команду /help
func (rb *RelayBot) handleHelp(c tele.Context) error {
	if rb.storage.IsAdmin(c.Sender().ID) {
		return c.Send(adminHelp)
	}
	return c.Send("Пишите сюда свои сообщения, они будут переданы команде. Ответ придет в этот же чат.")
}

// requireAdmin проверяет права отправителя команды
func (rb *RelayBot) requireAdmin(c tele.Context) bool {
	if rb.storage.IsAdmin(c.Sender().ID) {
		return true
	}
	c.Send("Эта команда доступна только администраторам.")
	return false
}

// handleApproveCommand обрабатывает команду /approve <telegram id>
func (rb *RelayBot) handleApproveCommand(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: /approve <telegram id>")
	}
	telegramID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Telegram ID должен быть числом.")
	}

	client, err := rb.storage.Approve(telegramID)
	if err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			return c.Send("Заявка не найдена или уже обработана.")
		}
		rb.logger.Errorf("Ошибка одобрения заявки %d: %v", telegramID, err)
		return c.Send("Произошла ошибка при одобрении.")
	}

	rb.logger.Infof("Администратор %d одобрил клиента %s (telegram %d)", c.Sender().ID, client.Id, telegramID)

	if _, err := rb.api.Send(tele.ChatID(telegramID), "Ваша заявка одобрена! Теперь ваши сообщения будут переданы команде."); err != nil {
		rb.logger.Errorf("Не удалось уведомить клиента %d об одобрении: %v", telegramID, err)
	}

	return c.Send(fmt.Sprintf("Клиент одобрен, ID: %s.", client.Id))
}

// handleRejectCommand обрабатывает команду /reject <telegram id>
func (rb *RelayBot) handleRejectCommand(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: /reject <telegram id>")
	}
	telegramID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Telegram ID должен быть числом.")
	}

	if err := rb.storage.Reject(telegramID); err != nil {
		rb.logger.Errorf("Ошибка отклонения заявки %d: %v", telegramID, err)
		return c.Send("Произошла ошибка при отклонении.")
	}

	rb.logger.Infof("Администратор %d отклонил заявку %d", c.Sender().ID, telegramID)

	if _, err := rb.api.Send(tele.ChatID(telegramID), "Ваша заявка отклонена."); err != nil {
		rb.logger.Errorf("Не удалось уведомить клиента %d об отклонении: %v", telegramID, err)
	}

	return c.Send("Заявка отклонена.")
}

// handlePendingCommand обрабатывает команду /pending
func (rb *RelayBot) handlePendingCommand(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}
	return rb.sendPendingList(c)
}

// sendPendingList отправляет заявки по одной с кнопками решения
func (rb *RelayBot) sendPendingList(c tele.Context) error {
	pending := rb.storage.PendingClients()
	if len(pending) == 0 {
		return c.Send("Заявок нет.")
	}

	for _, p := range pending {
		text := fmt.Sprintf("Заявка от %s (telegram %d, %s)",
			p.DisplayName(), p.TelegramID, p.Timestamp.Format("02.01.2006 15:04"))
		if err := c.Send(text, pendingKeyboard(p.TelegramID)); err != nil {
			return err
		}
	}
	return nil
}

// handleSetAlias обрабатывает команду /setalias <id клиента> <алиас>
func (rb *RelayBot) handleSetAlias(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Использование: /setalias <id клиента> <алиас>")
	}
	clientID := args[0]
	alias := strings.Join(args[1:], " ")

	if err := rb.storage.SetAlias(clientID, alias); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return c.Send("Клиент не найден.")
		}
		rb.logger.Errorf("Ошибка установки алиаса клиенту %s: %v", clientID, err)
		return c.Send("Произошла ошибка.")
	}

	return c.Send(fmt.Sprintf("Алиас клиента %s: %s", clientID, alias))
}

// handleSetGroupName обрабатывает команду /setgroupname <id группы> <название>
func (rb *RelayBot) handleSetGroupName(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Использование: /setgroupname <id группы> <название>")
	}
	groupID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("ID группы должен быть числом.")
	}
	name := strings.Join(args[1:], " ")

	if err := rb.storage.SetGroupName(groupID, name); err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return c.Send("Группа не найдена.")
		}
		rb.logger.Errorf("Ошибка переименования группы %d: %v", groupID, err)
		return c.Send("Произошла ошибка.")
	}

	return c.Send(fmt.Sprintf("Группа %d теперь называется %q.", groupID, name))
}

// handleAddGroup обрабатывает команду /addgroup, выполняемую в группе
func (rb *RelayBot) handleAddGroup(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}
	if !isGroup(c) {
		return c.Send("Команда выполняется в группе, которую нужно зарегистрировать.")
	}
	return rb.registerGroup(c)
}

// handleAssignGroup обрабатывает команду /assigngroup <id клиента>,
// выполняемую в целевой группе
func (rb *RelayBot) handleAssignGroup(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}
	if !isGroup(c) {
		return c.Send("Команда выполняется в группе, на которую назначается клиент.")
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: /assigngroup <id клиента>")
	}
	clientID := args[0]
	chatID := c.Chat().ID

	// Незнакомая группа регистрируется по ходу назначения
	if !rb.storage.HasGroup(chatID) {
		if err := rb.registerGroup(c); err != nil {
			return err
		}
	}

	if err := rb.storage.SetAssignment(clientID, chatID, true); err != nil {
		switch {
		case errors.Is(err, storage.ErrClientNotFound):
			return c.Send("Клиент не найден.")
		case errors.Is(err, storage.ErrGroupNotFound):
			return c.Send("Группа не найдена.")
		default:
			rb.logger.Errorf("Ошибка назначения %s -> %d: %v", clientID, chatID, err)
			return c.Send("Произошла ошибка.")
		}
	}

	rb.logger.Infof("Клиент %s назначен на группу %d", clientID, chatID)
	return c.Send(fmt.Sprintf("Клиент %s будет получать сообщения из этой группы.", clientID))
}

// handleGetInfo обрабатывает команду /getinfo <id клиента>
func (rb *RelayBot) handleGetInfo(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: /getinfo <id клиента>")
	}
	clientID := args[0]

	text, err := rb.clientInfoText(clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return c.Send("Клиент не найден.")
		}
		rb.logger.Errorf("Ошибка получения клиента %s: %v", clientID, err)
		return c.Send("Произошла ошибка.")
	}

	return c.Send(text, clientInfoKeyboard(clientID))
}

// clientInfoText собирает карточку клиента
func (rb *RelayBot) clientInfoText(clientID string) (string, error) {
	client, err := rb.storage.GetClient(clientID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Клиент %s\n", client.Id)
	fmt.Fprintf(&sb, "Telegram ID: %d\n", client.TelegramID)
	fmt.Fprintf(&sb, "Имя: %s\n", client.DisplayName())
	fmt.Fprintf(&sb, "Статус: %s\n", client.Status)

	groups := rb.storage.Assignments(clientID)
	if len(groups) == 0 {
		sb.WriteString("Группы: не назначены")
	} else {
		sb.WriteString("Группы:")
		for _, id := range groups {
			if name, ok := rb.storage.GroupName(id); ok {
				fmt.Fprintf(&sb, "\n  %s (%d)", name, id)
			} else {
				fmt.Fprintf(&sb, "\n  %d", id)
			}
		}
	}
	return sb.String(), nil
}

// handleListClientsCommand обрабатывает команду /listclients
func (rb *RelayBot) handleListClientsCommand(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	clients := rb.storage.Clients()
	if len(clients) == 0 {
		return c.Send("Клиентов пока нет.")
	}
	return c.Send("Клиенты:", clientPickerKeyboard(clients, "select_info_"))
}

// handleInvite обрабатывает команду /invite: QR-код со ссылкой на бота
func (rb *RelayBot) handleInvite(c tele.Context) error {
	if !rb.requireAdmin(c) {
		return nil
	}

	username := rb.selfUsername()
	if username == "" {
		return c.Send("Не удалось определить имя бота.")
	}

	link := "https://t.me/" + username
	qrPNG, err := GenerateQRCode(link, 512)
	if err != nil {
		rb.logger.Errorf("Ошибка генерации QR-кода: %v", err)
		return c.Send("Не удалось сгенерировать QR-код.")
	}

	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(qrPNG)),
		Caption: link,
	}
	return c.Send(photo)
}

// selfUsername возвращает username самого бота
func (rb *RelayBot) selfUsername() string {
	if rb.bot == nil || rb.bot.Me == nil {
		return ""
	}
	return rb.bot.Me.Username
}
