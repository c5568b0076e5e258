package telegrambot

import (
	"testing"

	"github.com/MrPunder/client-relay-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data    string
		want    callbackAction
		wantErr bool
	}{
		{data: "approve_555", want: callbackAction{kind: actionApprove, telegramID: 555}},
		{data: "reject_555", want: callbackAction{kind: actionReject, telegramID: 555}},
		{data: "delete_client_abcd1234", want: callbackAction{kind: actionDeleteClient, clientID: "abcd1234"}},
		{data: "delete_group_-1001234", want: callbackAction{kind: actionDeleteGroup, groupID: -1001234}},
		{data: "toggle_group_abcd1234_-100", want: callbackAction{kind: actionToggleGroup, clientID: "abcd1234", groupID: -100}},
		{data: "assign_to_abcd1234", want: callbackAction{kind: actionAssignTo, clientID: "abcd1234"}},
		{data: "select_assign_abcd1234", want: callbackAction{kind: actionSelectAssign, clientID: "abcd1234"}},
		{data: "select_info_abcd1234", want: callbackAction{kind: actionSelectInfo, clientID: "abcd1234"}},
		{data: "reply_to_abcd1234", want: callbackAction{kind: actionReplyTo, clientID: "abcd1234"}},
		{data: "admin_panel", want: callbackAction{kind: actionAdminPanel}},
		{data: "list_clients", want: callbackAction{kind: actionListClients}},
		{data: "pending_list", want: callbackAction{kind: actionPendingList}},
		{data: "assign_menu", want: callbackAction{kind: actionAssignMenu}},
		{data: "group_list", want: callbackAction{kind: actionGroupList}},
		{data: "info_client", want: callbackAction{kind: actionInfoClient}},
		{data: "cancel_reply", want: callbackAction{kind: actionCancelReply}},
		{data: "add_current_chat", want: callbackAction{kind: actionAddCurrentChat}},

		// Префикс телебота и пробелы отбрасываются
		{data: "\fapprove_555", want: callbackAction{kind: actionApprove, telegramID: 555}},
		{data: " approve_555 ", want: callbackAction{kind: actionApprove, telegramID: 555}},

		{data: "approve_notanumber", wantErr: true},
		{data: "toggle_group_abcd1234", wantErr: true},
		{data: "toggle_group_abcd1234_xx", wantErr: true},
		{data: "delete_group_xx", wantErr: true},
		{data: "something_else", wantErr: true},
		{data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallbackData(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func adminCallback(adminID int64, data string) *fakeContext {
	return &fakeContext{
		callback: &tele.Callback{
			Data:    data,
			Sender:  &tele.User{ID: adminID},
			Message: &tele.Message{Chat: &tele.Chat{ID: adminID, Type: tele.ChatPrivate}},
		},
	}
}

func TestCallbackRejectsNonAdmin(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.RegisterPending(testPending(111)))

	// Кнопка могла остаться у бывшего администратора, права проверяются
	// в момент нажатия
	ctx := adminCallback(444, "approve_111")
	require.NoError(t, rb.handleCallback(ctx))

	assert.True(t, stor.IsPending(111))
	assert.Empty(t, api.sent)
	require.Len(t, ctx.responses, 1)
	assert.Contains(t, ctx.responses[0].Text, "Недостаточно прав")
}

func TestCallbackUnknownAction(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))

	ctx := adminCallback(999, "launch_rockets")
	require.NoError(t, rb.handleCallback(ctx))

	require.Len(t, ctx.responses, 1)
	assert.Contains(t, ctx.responses[0].Text, "Неизвестное действие")
}

func TestCallbackPanelActionsPrivateOnly(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))

	ctx := &fakeContext{
		callback: &tele.Callback{
			Data:    "list_clients",
			Sender:  &tele.User{ID: 999},
			Message: &tele.Message{Chat: &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}},
		},
	}
	require.NoError(t, rb.handleCallback(ctx))

	require.Len(t, ctx.responses, 1)
	assert.Contains(t, ctx.responses[0].Text, "личном чате")
	assert.Empty(t, ctx.sent)
}

func TestCallbackApproveTwice(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	require.NoError(t, stor.RegisterPending(testPending(111)))

	require.NoError(t, rb.handleCallback(adminCallback(999, "approve_111")))

	// Повторное нажатие по устаревшей кнопке
	ctx := adminCallback(999, "approve_111")
	require.NoError(t, rb.handleCallback(ctx))

	require.Len(t, ctx.responses, 1)
	assert.Contains(t, ctx.responses[0].Text, "уже обработана")
}

func TestCallbackRejectClearsPending(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	require.NoError(t, stor.RegisterPending(testPending(111)))

	require.NoError(t, rb.handleCallback(adminCallback(999, "reject_111")))

	assert.False(t, stor.IsPending(111))
	// Клиент уведомлен об отказе
	require.Len(t, api.sentTo(111), 1)
}

func TestCallbackDeleteGroupPrunesAssignments(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))

	require.NoError(t, rb.handleCallback(adminCallback(999, "delete_group_-100")))

	assert.False(t, stor.HasGroup(-100))
	assert.Empty(t, stor.Assignments(client.Id))
}

func TestCallbackToggleGroupRedraws(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))

	data := "toggle_group_" + client.Id + "_-100"

	ctx := adminCallback(999, data)
	require.NoError(t, rb.handleCallback(ctx))
	assert.Equal(t, []int64{-100}, stor.Assignments(client.Id))
	require.Len(t, ctx.edited, 1)

	// Повторное нажатие снимает назначение
	ctx = adminCallback(999, data)
	require.NoError(t, rb.handleCallback(ctx))
	assert.Empty(t, stor.Assignments(client.Id))
}

func TestCallbackReplyFlow(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)

	require.NoError(t, rb.handleCallback(adminCallback(999, "reply_to_"+client.Id)))

	// Следующее сообщение администратора уходит клиенту
	require.NoError(t, rb.handleMessage(privateText(999, "Чем помочь?")))
	got := api.sentTo(555)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].what.(string), "Чем помочь?")
}

func TestCallbackAddCurrentChat(t *testing.T) {
	rb, stor, _ := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))

	ctx := &fakeContext{
		callback: &tele.Callback{
			Data:    "add_current_chat",
			Sender:  &tele.User{ID: 999},
			Message: &tele.Message{Chat: &tele.Chat{ID: -100, Type: tele.ChatSuperGroup, Title: "Support"}},
		},
	}
	require.NoError(t, rb.handleCallback(ctx))

	assert.True(t, stor.HasGroup(-100))
	name, ok := stor.GroupName(-100)
	require.True(t, ok)
	assert.Equal(t, "Support", name)

	// В личном чате кнопка не работает
	ctx = adminCallback(999, "add_current_chat")
	require.NoError(t, rb.handleCallback(ctx))
	require.Len(t, ctx.responses, 1)
	assert.Contains(t, ctx.responses[0].Text, "группе")
}

func TestCallbackCancelReply(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)

	require.NoError(t, rb.handleCallback(adminCallback(999, "reply_to_"+client.Id)))
	require.NoError(t, rb.handleCallback(adminCallback(999, "cancel_reply")))

	require.NoError(t, rb.handleMessage(privateText(999, "не должно уйти")))
	assert.Empty(t, api.sentTo(555))
}
