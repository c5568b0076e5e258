package telegrambot

import (
	"fmt"
	"strconv"

	"github.com/MrPunder/client-relay-bot/internal/models"
	tele "gopkg.in/telebot.v3"
)

// adminPanelKeyboard — главное меню администратора
func adminPanelKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "📋 Заявки", Data: "pending_list"}},
			{{Text: "👥 Клиенты", Data: "list_clients"}},
			{{Text: "ℹ️ Информация о клиенте", Data: "info_client"}},
			{{Text: "🔀 Назначение групп", Data: "assign_menu"}},
			{{Text: "💬 Группы", Data: "group_list"}},
		},
	}
}

// pendingKeyboard — кнопки решения по заявке
func pendingKeyboard(telegramID int64) *tele.ReplyMarkup {
	id := strconv.FormatInt(telegramID, 10)
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "✅ Одобрить", Data: "approve_" + id},
				{Text: "❌ Отклонить", Data: "reject_" + id},
			},
		},
	}
}

// clientListKeyboard — список клиентов с кнопками удаления
func clientListKeyboard(clients []*models.Client) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(clients))
	for _, client := range clients {
		rows = append(rows, []tele.InlineButton{
			{
				Text: fmt.Sprintf("🗑 %s (%s)", client.DisplayName(), client.Id),
				Data: "delete_client_" + client.Id,
			},
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// clientPickerKeyboard — список клиентов с кнопками выбора для действия,
// заданного префиксом данных
func clientPickerKeyboard(clients []*models.Client, prefix string) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(clients))
	for _, client := range clients {
		rows = append(rows, []tele.InlineButton{
			{
				Text: fmt.Sprintf("%s (%s)", client.DisplayName(), client.Id),
				Data: prefix + client.Id,
			},
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// groupListKeyboard — список групп с кнопками удаления
func groupListKeyboard(groups []*models.Group) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(groups))
	for _, group := range groups {
		name := group.Name
		if name == "" {
			name = fmt.Sprintf("Group%d", group.ID)
		}
		rows = append(rows, []tele.InlineButton{
			{
				Text: fmt.Sprintf("🗑 %s (%d)", name, group.ID),
				Data: "delete_group_" + strconv.FormatInt(group.ID, 10),
			},
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// clientInfoKeyboard — действия по конкретному клиенту
func clientInfoKeyboard(clientID string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "✉️ Ответить", Data: "reply_to_" + clientID},
				{Text: "🔀 Группы", Data: "assign_to_" + clientID},
			},
			{
				{Text: "🗑 Удалить", Data: "delete_client_" + clientID},
			},
		},
	}
}

// addCurrentChatKeyboard — кнопка регистрации текущего чата
func addCurrentChatKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "➕ Зарегистрировать этот чат", Data: "add_current_chat"}},
		},
	}
}

// cancelReplyKeyboard — кнопка отмены ожидаемого ответа
func cancelReplyKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "Отменить", Data: "cancel_reply"}},
		},
	}
}

// assignKeyboard — переключатели групп для клиента с отметками текущих
// назначений
func (rb *RelayBot) assignKeyboard(clientID string) *tele.ReplyMarkup {
	assigned := make(map[int64]struct{})
	for _, id := range rb.storage.Assignments(clientID) {
		assigned[id] = struct{}{}
	}

	groups := rb.storage.Groups()
	rows := make([][]tele.InlineButton, 0, len(groups))
	for _, group := range groups {
		name := group.Name
		if name == "" {
			name = fmt.Sprintf("Group%d", group.ID)
		}
		mark := "☐"
		if _, ok := assigned[group.ID]; ok {
			mark = "☑"
		}
		rows = append(rows, []tele.InlineButton{
			{
				Text: fmt.Sprintf("%s %s", mark, name),
				Data: fmt.Sprintf("toggle_group_%s_%d", clientID, group.ID),
			},
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
