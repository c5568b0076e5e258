package telegrambot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrPunder/client-relay-bot/internal/storage"
	tele "gopkg.in/telebot.v3"
)

// actionKind — закрытый набор действий inline-кнопок
type actionKind int

const (
	actionUnknown actionKind = iota
	actionApprove
	actionReject
	actionDeleteClient
	actionDeleteGroup
	actionToggleGroup
	actionAssignTo
	actionAdminPanel
	actionListClients
	actionPendingList
	actionAssignMenu
	actionSelectAssign
	actionGroupList
	actionInfoClient
	actionSelectInfo
	actionReplyTo
	actionCancelReply
	actionAddCurrentChat
)

// callbackAction — разобранные данные inline-кнопки. Параметры заполнены
// в зависимости от вида действия.
type callbackAction struct {
	kind       actionKind
	telegramID int64
	clientID   string
	groupID    int64
}

// panelOnly сообщает, допустимо ли действие только в личном чате
func (a callbackAction) panelOnly() bool {
	switch a.kind {
	case actionAdminPanel, actionListClients, actionPendingList, actionAssignMenu,
		actionSelectAssign, actionGroupList, actionInfoClient, actionSelectInfo,
		actionReplyTo, actionCancelReply, actionAssignTo:
		return true
	}
	return false
}

var errUnknownAction = errors.New("unknown callback action")

// parseCallbackData разбирает данные кнопки в типизированное действие.
// Префиксы проверяются от самого длинного к самому короткому, чтобы
// toggle_group_ не перепутался с group_list и подобными.
func parseCallbackData(data string) (callbackAction, error) {
	data = strings.TrimSpace(strings.TrimPrefix(data, "\f"))

	switch data {
	case "admin_panel":
		return callbackAction{kind: actionAdminPanel}, nil
	case "list_clients":
		return callbackAction{kind: actionListClients}, nil
	case "pending_list":
		return callbackAction{kind: actionPendingList}, nil
	case "assign_menu":
		return callbackAction{kind: actionAssignMenu}, nil
	case "group_list":
		return callbackAction{kind: actionGroupList}, nil
	case "info_client":
		return callbackAction{kind: actionInfoClient}, nil
	case "cancel_reply":
		return callbackAction{kind: actionCancelReply}, nil
	case "add_current_chat":
		return callbackAction{kind: actionAddCurrentChat}, nil
	}

	if rest, ok := strings.CutPrefix(data, "toggle_group_"); ok {
		i := strings.LastIndex(rest, "_")
		if i <= 0 {
			return callbackAction{}, fmt.Errorf("malformed toggle_group payload %q", data)
		}
		groupID, err := strconv.ParseInt(rest[i+1:], 10, 64)
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed toggle_group payload %q", data)
		}
		return callbackAction{kind: actionToggleGroup, clientID: rest[:i], groupID: groupID}, nil
	}
	if rest, ok := strings.CutPrefix(data, "select_assign_"); ok {
		return callbackAction{kind: actionSelectAssign, clientID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(data, "delete_client_"); ok {
		return callbackAction{kind: actionDeleteClient, clientID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(data, "delete_group_"); ok {
		groupID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed delete_group payload %q", data)
		}
		return callbackAction{kind: actionDeleteGroup, groupID: groupID}, nil
	}
	if rest, ok := strings.CutPrefix(data, "select_info_"); ok {
		return callbackAction{kind: actionSelectInfo, clientID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(data, "assign_to_"); ok {
		return callbackAction{kind: actionAssignTo, clientID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(data, "reply_to_"); ok {
		return callbackAction{kind: actionReplyTo, clientID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(data, "approve_"); ok {
		telegramID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed approve payload %q", data)
		}
		return callbackAction{kind: actionApprove, telegramID: telegramID}, nil
	}
	if rest, ok := strings.CutPrefix(data, "reject_"); ok {
		telegramID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed reject payload %q", data)
		}
		return callbackAction{kind: actionReject, telegramID: telegramID}, nil
	}

	return callbackAction{}, errUnknownAction
}

// handleCallback — единая точка входа для всех inline-кнопок
func (rb *RelayBot) handleCallback(c tele.Context) error {
	action, err := parseCallbackData(c.Callback().Data)
	if err != nil {
		rb.logger.Errorf("Некорректные данные кнопки от %d: %v", c.Sender().ID, err)
		return c.Respond(&tele.CallbackResponse{Text: "Неизвестное действие"})
	}

	// Права проверяются в момент нажатия, а не в момент отправки кнопки
	if !rb.storage.IsAdmin(c.Sender().ID) {
		return c.Respond(&tele.CallbackResponse{Text: "Недостаточно прав"})
	}
	if action.panelOnly() && !isPrivate(c) {
		return c.Respond(&tele.CallbackResponse{Text: "Доступно только в личном чате"})
	}

	switch action.kind {
	case actionApprove:
		return rb.approvePending(c, action.telegramID)
	case actionReject:
		return rb.rejectPending(c, action.telegramID)
	case actionDeleteClient:
		return rb.deleteClient(c, action.clientID)
	case actionDeleteGroup:
		return rb.deleteGroup(c, action.groupID)
	case actionToggleGroup:
		return rb.toggleGroup(c, action.clientID, action.groupID)
	case actionAssignTo, actionSelectAssign:
		return rb.showAssignKeyboard(c, action.clientID)
	case actionAdminPanel:
		c.Respond(&tele.CallbackResponse{})
		return c.Send("Панель администратора:", adminPanelKeyboard())
	case actionListClients:
		return rb.showClientList(c)
	case actionPendingList:
		return rb.showPendingList(c)
	case actionAssignMenu:
		return rb.showClientPicker(c, "select_assign_", "Кому настроить группы?")
	case actionGroupList:
		return rb.showGroupList(c)
	case actionInfoClient:
		return rb.showClientPicker(c, "select_info_", "По какому клиенту показать информацию?")
	case actionSelectInfo:
		return rb.showClientInfo(c, action.clientID)
	case actionReplyTo:
		return rb.startReply(c, action.clientID)
	case actionCancelReply:
		rb.clearReplyTarget(c.Sender().ID)
		return c.Respond(&tele.CallbackResponse{Text: "Ответ отменен"})
	case actionAddCurrentChat:
		return rb.addCurrentChat(c)
	default:
		return c.Respond(&tele.CallbackResponse{Text: "Неизвестное действие"})
	}
}

// approvePending одобряет заявку клиента
func (rb *RelayBot) approvePending(c tele.Context, telegramID int64) error {
	client, err := rb.storage.Approve(telegramID)
	if err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Заявка не найдена или уже обработана"})
		}
		rb.logger.Errorf("Ошибка одобрения заявки %d: %v", telegramID, err)
		return c.Respond(&tele.CallbackResponse{Text: "Ошибка при одобрении"})
	}

	rb.logger.Infof("Администратор %d одобрил клиента %s (telegram %d)", c.Sender().ID, client.Id, telegramID)

	// Уведомляем клиента, неудача не отменяет одобрение
	if _, err := rb.api.Send(tele.ChatID(telegramID), "Ваша заявка одобрена! Теперь ваши сообщения будут переданы команде."); err != nil {
		rb.logger.Errorf("Не удалось уведомить клиента %d об одобрении: %v", telegramID, err)
	}

	c.Respond(&tele.CallbackResponse{Text: "Одобрено"})
	return c.Send(fmt.Sprintf("Клиент одобрен, ID: %s. Настройте группы через /assigngroup %s в нужной группе.", client.Id, client.Id))
}

// rejectPending отклоняет заявку клиента
func (rb *RelayBot) rejectPending(c tele.Context, telegramID int64) error {
	if err := rb.storage.Reject(telegramID); err != nil {
		rb.logger.Errorf("Ошибка отклонения заявки %d: %v", telegramID, err)
		return c.Respond(&tele.CallbackResponse{Text: "Ошибка при отклонении"})
	}

	rb.logger.Infof("Администратор %d отклонил заявку %d", c.Sender().ID, telegramID)

	if _, err := rb.api.Send(tele.ChatID(telegramID), "Ваша заявка отклонена."); err != nil {
		rb.logger.Errorf("Не удалось уведомить клиента %d об отклонении: %v", telegramID, err)
	}

	return c.Respond(&tele.CallbackResponse{Text: "Отклонено"})
}

// deleteClient удаляет клиента со всеми назначениями
func (rb *RelayBot) deleteClient(c tele.Context, clientID string) error {
	if err := rb.storage.DeleteClient(clientID); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Клиент не найден"})
		}
		rb.logger.Errorf("Ошибка удаления клиента %s: %v", clientID, err)
		return c.Respond(&tele.CallbackResponse{Text: "Ошибка при удалении"})
	}

	rb.logger.Infof("Администратор %d удалил клиента %s", c.Sender().ID, clientID)
	c.Respond(&tele.CallbackResponse{Text: "Клиент удален"})
	return c.Send(fmt.Sprintf("Клиент %s удален.", clientID))
}

// deleteGroup удаляет группу со всеми назначениями на нее
func (rb *RelayBot) deleteGroup(c tele.Context, groupID int64) error {
	if err := rb.storage.DeleteGroup(groupID); err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Группа не найдена"})
		}
		rb.logger.Errorf("Ошибка удаления группы %d: %v", groupID, err)
		return c.Respond(&tele.CallbackResponse{Text: "Ошибка при удалении"})
	}

	rb.logger.Infof("Администратор %d удалил группу %d", c.Sender().ID, groupID)
	c.Respond(&tele.CallbackResponse{Text: "Группа удалена"})
	return rb.showGroupList(c)
}

// toggleGroup переключает назначение клиента на группу и перерисовывает
// клавиатуру выбора
func (rb *RelayBot) toggleGroup(c tele.Context, clientID string, groupID int64) error {
	assigned := false
	for _, id := range rb.storage.Assignments(clientID) {
		if id == groupID {
			assigned = true
			break
		}
	}

	if err := rb.storage.SetAssignment(clientID, groupID, !assigned); err != nil {
		switch {
		case errors.Is(err, storage.ErrClientNotFound):
			return c.Respond(&tele.CallbackResponse{Text: "Клиент не найден"})
		case errors.Is(err, storage.ErrGroupNotFound):
			return c.Respond(&tele.CallbackResponse{Text: "Группа не найдена"})
		default:
			rb.logger.Errorf("Ошибка назначения %s -> %d: %v", clientID, groupID, err)
			return c.Respond(&tele.CallbackResponse{Text: "Ошибка при назначении"})
		}
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Edit(fmt.Sprintf("Группы клиента %s:", clientID), rb.assignKeyboard(clientID))
}

// showAssignKeyboard показывает клавиатуру назначения групп для клиента
func (rb *RelayBot) showAssignKeyboard(c tele.Context, clientID string) error {
	if _, err := rb.storage.GetClient(clientID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Клиент не найден"})
	}
	if len(rb.storage.Groups()) == 0 {
		c.Respond(&tele.CallbackResponse{})
		return c.Send("Нет ни одной группы. Добавьте бота в группу и выполните там /addgroup.")
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Send(fmt.Sprintf("Группы клиента %s:", clientID), rb.assignKeyboard(clientID))
}

// showClientList показывает список клиентов с кнопками удаления
func (rb *RelayBot) showClientList(c tele.Context) error {
	clients := rb.storage.Clients()
	if len(clients) == 0 {
		c.Respond(&tele.CallbackResponse{})
		return c.Send("Клиентов пока нет.")
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Send("Клиенты:", clientListKeyboard(clients))
}

// showPendingList показывает заявки с кнопками одобрения и отклонения
func (rb *RelayBot) showPendingList(c tele.Context) error {
	c.Respond(&tele.CallbackResponse{})
	return rb.sendPendingList(c)
}

// showClientPicker показывает список клиентов с кнопками выбора
func (rb *RelayBot) showClientPicker(c tele.Context, prefix string, title string) error {
	clients := rb.storage.Clients()
	if len(clients) == 0 {
		c.Respond(&tele.CallbackResponse{})
		return c.Send("Клиентов пока нет.")
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Send(title, clientPickerKeyboard(clients, prefix))
}

// showGroupList показывает список групп с кнопками удаления
func (rb *RelayBot) showGroupList(c tele.Context) error {
	groups := rb.storage.Groups()
	if len(groups) == 0 {
		c.Respond(&tele.CallbackResponse{})
		return c.Send("Групп пока нет. Добавьте бота в группу и выполните там /addgroup.")
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Send("Группы:", groupListKeyboard(groups))
}

// showClientInfo показывает сведения о клиенте
func (rb *RelayBot) showClientInfo(c tele.Context, clientID string) error {
	text, err := rb.clientInfoText(clientID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Клиент не найден"})
	}

	c.Respond(&tele.CallbackResponse{})
	return c.Send(text, clientInfoKeyboard(clientID))
}

// startReply ставит маркер "жду ответ" для администратора
func (rb *RelayBot) startReply(c tele.Context, clientID string) error {
	if _, err := rb.storage.GetClient(clientID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Клиент не найден"})
	}

	rb.setReplyTarget(c.Sender().ID, clientID)
	c.Respond(&tele.CallbackResponse{})
	return c.Send(
		fmt.Sprintf("Напишите ответ клиенту %s следующим сообщением.", clientID),
		cancelReplyKeyboard(),
	)
}

// addCurrentChat регистрирует текущую группу
func (rb *RelayBot) addCurrentChat(c tele.Context) error {
	if !isGroup(c) {
		return c.Respond(&tele.CallbackResponse{Text: "Доступно только в группе"})
	}
	c.Respond(&tele.CallbackResponse{})
	return rb.registerGroup(c)
}
