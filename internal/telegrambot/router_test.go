package telegrambot

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/MrPunder/client-relay-bot/internal/config"
	"github.com/MrPunder/client-relay-bot/internal/models"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

// noopLogger — заглушка логгера для тестов
type noopLogger struct{}

func (noopLogger) Info(string)           {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Error(string)          {}
func (noopLogger) Errorf(string, ...any) {}
func (noopLogger) Debug(string)          {}
func (noopLogger) Debugf(string, ...any) {}

// sentMessage — запись об исходящей отправке через фальшивый транспорт
type sentMessage struct {
	to   int64
	what interface{}
}

// fakeAPI подменяет транспорт Telegram: запоминает отправки и умеет
// отказывать заданным получателям
type fakeAPI struct {
	sent   []sentMessage
	failTo map[int64]bool
	nextID int
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	id, err := strconv.ParseInt(to.Recipient(), 10, 64)
	if err != nil {
		return nil, err
	}
	if f.failTo[id] {
		return nil, errors.New("forbidden: bot was kicked")
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{to: id, what: what})
	return &tele.Message{ID: f.nextID, Chat: &tele.Chat{ID: id}}, nil
}

func (f *fakeAPI) ChatByID(id int64) (*tele.Chat, error) {
	return &tele.Chat{ID: id, Title: "Group" + strconv.FormatInt(id, 10)}, nil
}

// sentTo возвращает отправки конкретному получателю
func (f *fakeAPI) sentTo(id int64) []sentMessage {
	var out []sentMessage
	for _, s := range f.sent {
		if s.to == id {
			out = append(out, s)
		}
	}
	return out
}

// fakeContext реализует используемое ботом подмножество tele.Context.
// Остальные методы унаследованы от nil-интерфейса и падают при вызове.
type fakeContext struct {
	tele.Context
	message   *tele.Message
	callback  *tele.Callback
	args      []string
	sent      []interface{}
	edited    []interface{}
	responses []*tele.CallbackResponse
}

func (f *fakeContext) Message() *tele.Message { return f.message }

func (f *fakeContext) Callback() *tele.Callback { return f.callback }

func (f *fakeContext) Sender() *tele.User {
	if f.callback != nil {
		return f.callback.Sender
	}
	if f.message != nil {
		return f.message.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.callback != nil && f.callback.Message != nil {
		return f.callback.Message.Chat
	}
	if f.message != nil {
		return f.message.Chat
	}
	return nil
}

func (f *fakeContext) Args() []string { return f.args }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	f.edited = append(f.edited, what)
	return nil
}

func (f *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	if len(resp) == 0 {
		resp = []*tele.CallbackResponse{{}}
	}
	f.responses = append(f.responses, resp...)
	return nil
}

// newTestBot собирает бота с хранилищем в памяти и фальшивым транспортом
func newTestBot(t *testing.T, mode string) (*RelayBot, *storage.Memstorage, *fakeAPI) {
	t.Helper()

	stor := storage.NewMemstorage()
	api := &fakeAPI{failTo: make(map[int64]bool)}
	rb := &RelayBot{
		api:     api,
		storage: stor,
		logger:  noopLogger{},
		config: Config{
			Mode:         mode,
			ReplyTimeout: 5 * time.Minute,
		},
		pendingReplies: make(map[int64]replyTarget),
	}
	return rb, stor, api
}

func privateText(senderID int64, text string) *fakeContext {
	return &fakeContext{
		message: &tele.Message{
			ID:     1,
			Text:   text,
			Sender: &tele.User{ID: senderID, Username: "ivanov", FirstName: "Ivan"},
			Chat:   &tele.Chat{ID: senderID, Type: tele.ChatPrivate},
		},
	}
}

func groupReply(chatID int64, senderID int64, replyToID int, text string) *fakeContext {
	return &fakeContext{
		message: &tele.Message{
			ID:      100,
			Text:    text,
			Sender:  &tele.User{ID: senderID},
			Chat:    &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup, Title: "Support"},
			ReplyTo: &tele.Message{ID: replyToID},
		},
	}
}

func testPending(telegramID int64) *models.PendingClient {
	return &models.PendingClient{
		TelegramID: telegramID,
		Username:   "ivanov",
		Timestamp:  models.GetCurrentTime(),
	}
}

func approveTestClient(t *testing.T, stor storage.Storage, telegramID int64) *models.Client {
	t.Helper()

	require.NoError(t, stor.RegisterPending(&models.PendingClient{
		TelegramID: telegramID,
		Timestamp:  models.GetCurrentTime(),
	}))
	client, err := stor.Approve(telegramID)
	require.NoError(t, err)
	return client
}

func TestFirstContactRegistersPending(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	require.NoError(t, stor.AddAdmin(998))

	ctx := privateText(111, "Здравствуйте, хочу доступ")
	require.NoError(t, rb.handleMessage(ctx))

	// Ровно одна заявка, клиент не создан
	assert.True(t, stor.IsPending(111))
	_, err := stor.FindClientByTelegramID(111)
	assert.ErrorIs(t, err, storage.ErrClientNotFound)

	// Оба администратора получили уведомление с кнопками
	require.Len(t, api.sentTo(999), 1)
	require.Len(t, api.sentTo(998), 1)

	// Отправителю подтверждена регистрация заявки
	require.Len(t, ctx.sent, 1)
	assert.Contains(t, ctx.sent[0], "Заявка")
}

func TestPendingMessagesNotRouted(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))

	require.NoError(t, rb.handleMessage(privateText(111, "первое")))
	require.Len(t, api.sentTo(999), 1)

	// Повторное сообщение не создает новую заявку и не дергает администраторов
	ctx := privateText(111, "второе")
	require.NoError(t, rb.handleMessage(ctx))
	require.Len(t, api.sentTo(999), 1)
	require.Len(t, stor.PendingClients(), 1)
	require.Len(t, ctx.sent, 1)
	assert.Contains(t, ctx.sent[0], "на рассмотрении")
}

func TestRelayToAssignedGroupsRecordsLink(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.AddGroup(-200, "sales"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))

	ctx := privateText(555, "нужна помощь")
	require.NoError(t, rb.handleMessage(ctx))

	// Доставлено только в назначенную группу
	require.Len(t, api.sentTo(-100), 1)
	assert.Empty(t, api.sentTo(-200))

	text, ok := api.sentTo(-100)[0].what.(string)
	require.True(t, ok)
	assert.Contains(t, text, client.Id)
	assert.Contains(t, text, "нужна помощь")
	assert.Contains(t, text, "iva") // первые три символа username

	// Связка записана на доставленное сообщение
	linked, ok := stor.LookupMessageLink(-100, 1)
	require.True(t, ok)
	assert.Equal(t, client.Id, linked)

	require.Len(t, ctx.sent, 1)
	assert.Contains(t, ctx.sent[0], "передано")
}

func TestRelayUsesAliasInCaption(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.SetAlias(client.Id, "VIP"))
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))

	require.NoError(t, rb.handleMessage(privateText(555, "привет")))

	text := api.sentTo(-100)[0].what.(string)
	assert.Contains(t, text, "VIP")
}

func TestRelayFailureIsolation(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.AddGroup(-200, "sales"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))
	require.NoError(t, stor.SetAssignment(client.Id, -200, true))
	api.failTo[-100] = true

	ctx := privateText(555, "нужна помощь")
	require.NoError(t, rb.handleMessage(ctx))

	// Отказ одной группы не мешает другой
	require.Len(t, api.sentTo(-200), 1)

	// Связка пишется только после успешной доставки
	_, ok := stor.LookupMessageLink(-100, 1)
	assert.False(t, ok)
	_, ok = stor.LookupMessageLink(-200, 1)
	assert.True(t, ok)

	assert.Contains(t, ctx.sent[0], "передано")
}

func TestRelayAdminsMode(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeAdmins)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))

	require.NoError(t, rb.handleMessage(privateText(555, "привет")))

	// В режиме admins назначения не учитываются
	assert.Empty(t, api.sentTo(-100))
	require.Len(t, api.sentTo(999), 1)

	// Связка в личном чате администратора работает для ответа
	linked, ok := stor.LookupMessageLink(999, 1)
	require.True(t, ok)
	assert.Equal(t, client.Id, linked)
}

func TestRelayWithoutAssignmentsFallsBackToAdmins(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	approveTestClient(t, stor, 555)

	require.NoError(t, rb.handleMessage(privateText(555, "привет")))
	require.Len(t, api.sentTo(999), 1)
}

func TestGroupReplyRoutedToLinkedClient(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.AddMessageLink(-100, 42, client.Id))

	ctx := groupReply(-100, 777, 42, "Ответ менеджера")
	require.NoError(t, rb.handleMessage(ctx))

	got := api.sentTo(555)
	require.Len(t, got, 1)
	text, ok := got[0].what.(string)
	require.True(t, ok)
	assert.Contains(t, text, "Ответ менеджера")
	assert.Contains(t, text, "Ответ от команды")
}

func TestGroupUnlinkedReplyInert(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))

	// Ответ на сообщение без связки и сообщение без ответа игнорируются
	require.NoError(t, rb.handleMessage(groupReply(-100, 777, 41, "мимо")))

	plain := groupReply(-100, 777, 41, "просто текст")
	plain.message.ReplyTo = nil
	require.NoError(t, rb.handleMessage(plain))

	assert.Empty(t, api.sent)
}

func TestGroupReplyDanglingLinkReported(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddGroup(-100, "support"))
	stor.AddMessageLink(-100, 42, "ghost123")

	ctx := groupReply(-100, 777, 42, "есть кто?")
	require.NoError(t, rb.handleMessage(ctx))

	assert.Empty(t, api.sent)
	require.Len(t, ctx.sent, 1)
	assert.Contains(t, ctx.sent[0], "удален")
}

func TestUnauthorizedGroupIgnored(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.AddMessageLink(-100, 42, client.Id))

	require.NoError(t, rb.handleMessage(groupReply(-999, 777, 42, "чужая группа")))
	assert.Empty(t, api.sent)
}

func TestAdminReplyToForwardedMessage(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeAdmins)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddMessageLink(999, 42, client.Id))

	ctx := &fakeContext{
		message: &tele.Message{
			ID:      43,
			Text:    "Отвечаю",
			Sender:  &tele.User{ID: 999},
			Chat:    &tele.Chat{ID: 999, Type: tele.ChatPrivate},
			ReplyTo: &tele.Message{ID: 42},
		},
	}
	require.NoError(t, rb.handleMessage(ctx))

	got := api.sentTo(555)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].what.(string), "Отвечаю")
}

func TestAdminReplyMarker(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeAdmins)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)

	rb.setReplyTarget(999, client.Id)

	ctx := privateText(999, "Ответ по кнопке")
	require.NoError(t, rb.handleMessage(ctx))

	got := api.sentTo(555)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].what.(string), "Ответ по кнопке")

	// Маркер одноразовый
	api.sent = nil
	require.NoError(t, rb.handleMessage(privateText(999, "еще раз")))
	assert.Empty(t, api.sentTo(555))
}

func TestAdminReplyMarkerExpires(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeAdmins)
	require.NoError(t, stor.AddAdmin(999))
	client := approveTestClient(t, stor, 555)

	rb.mu.Lock()
	rb.pendingReplies[999] = replyTarget{
		clientID: client.Id,
		setAt:    time.Now().Add(-10 * time.Minute),
	}
	rb.mu.Unlock()

	require.NoError(t, rb.handleMessage(privateText(999, "поздно")))
	assert.Empty(t, api.sentTo(555))
}

func TestRelayMediaKinds(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	client := approveTestClient(t, stor, 555)
	require.NoError(t, stor.AddGroup(-100, "support"))
	require.NoError(t, stor.SetAssignment(client.Id, -100, true))

	ctx := privateText(555, "")
	ctx.message.Photo = &tele.Photo{File: tele.File{FileID: "photo-1"}}
	require.NoError(t, rb.handleMessage(ctx))

	require.Len(t, api.sentTo(-100), 1)
	photo, ok := api.sentTo(-100)[0].what.(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "photo-1", photo.FileID)
	assert.Contains(t, photo.Caption, client.Id)
}

func TestBuildOutbound(t *testing.T) {
	tests := []struct {
		name    string
		message *tele.Message
		check   func(t *testing.T, out interface{})
	}{
		{
			name:    "text",
			message: &tele.Message{Text: "привет"},
			check: func(t *testing.T, out interface{}) {
				assert.Equal(t, "cap:\nпривет", out)
			},
		},
		{
			name:    "document",
			message: &tele.Message{Document: &tele.Document{File: tele.File{FileID: "d1"}, FileName: "report.pdf"}},
			check: func(t *testing.T, out interface{}) {
				doc, ok := out.(*tele.Document)
				require.True(t, ok)
				assert.Equal(t, "d1", doc.FileID)
				assert.Equal(t, "report.pdf", doc.FileName)
				assert.Equal(t, "cap", doc.Caption)
			},
		},
		{
			name:    "voice",
			message: &tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "v1"}}},
			check: func(t *testing.T, out interface{}) {
				voice, ok := out.(*tele.Voice)
				require.True(t, ok)
				assert.Equal(t, "v1", voice.FileID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, buildOutbound(tt.message, "cap"))
		})
	}
}

// TestRelayEndToEnd проигрывает полный сценарий: заявка, одобрение,
// назначение, пересылка и ответ из группы
func TestRelayEndToEnd(t *testing.T) {
	rb, stor, api := newTestBot(t, config.RoutingModeGroups)
	require.NoError(t, stor.AddAdmin(999))
	require.NoError(t, stor.AddGroup(-100, "support"))

	// Незнакомец пишет боту
	require.NoError(t, rb.handleMessage(privateText(111, "хочу доступ")))
	require.True(t, stor.IsPending(111))
	require.Len(t, api.sentTo(999), 1)

	// Администратор нажимает "Одобрить"
	cb := &fakeContext{
		callback: &tele.Callback{
			Data:    "approve_111",
			Sender:  &tele.User{ID: 999},
			Message: &tele.Message{Chat: &tele.Chat{ID: 999, Type: tele.ChatPrivate}},
		},
	}
	require.NoError(t, rb.handleCallback(cb))
	assert.False(t, stor.IsPending(111))

	client, err := stor.FindClientByTelegramID(111)
	require.NoError(t, err)

	// Клиенту ушло уведомление об одобрении
	require.Len(t, api.sentTo(111), 1)

	// Назначение на группу через переключатель
	toggle := &fakeContext{
		callback: &tele.Callback{
			Data:    "toggle_group_" + client.Id + "_-100",
			Sender:  &tele.User{ID: 999},
			Message: &tele.Message{Chat: &tele.Chat{ID: 999, Type: tele.ChatPrivate}},
		},
	}
	require.NoError(t, rb.handleCallback(toggle))
	assert.Equal(t, []int64{-100}, stor.Assignments(client.Id))

	// Клиент пишет, сообщение уходит в группу со связкой
	api.sent = nil
	require.NoError(t, rb.handleMessage(privateText(111, "нужна помощь")))
	groupSent := api.sentTo(-100)
	require.Len(t, groupSent, 1)

	deliveredID := api.nextID
	linked, ok := stor.LookupMessageLink(-100, deliveredID)
	require.True(t, ok)
	assert.Equal(t, client.Id, linked)

	// Менеджер отвечает в группе, ответ возвращается клиенту
	require.NoError(t, rb.handleMessage(groupReply(-100, 777, deliveredID, "Сейчас поможем")))
	replies := api.sentTo(111)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].what.(string), "Сейчас поможем")
}
