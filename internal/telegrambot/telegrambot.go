package telegrambot

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrPunder/client-relay-bot/internal/config"
	"github.com/MrPunder/client-relay-bot/internal/logger"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	tele "gopkg.in/telebot.v3"
)

// Config представляет конфигурацию Telegram-бота
type Config struct {
	Token        string        // Токен бота
	Mode         string        // Режим маршрутизации: groups или admins
	ReplyTimeout time.Duration // Время жизни маркера "жду ответ"
}

// api — минимальный интерфейс транспорта. *tele.Bot реализует его,
// в тестах подставляется заглушка.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	ChatByID(id int64) (*tele.Chat, error)
}

// replyTarget — маркер "администратор пишет ответ клиенту"
type replyTarget struct {
	clientID string
	setAt    time.Time
}

// RelayBot пересылает личные сообщения клиентов в назначенные группы
// (или администраторам) и возвращает ответы обратно
type RelayBot struct {
	bot     *tele.Bot
	api     api
	storage storage.Storage
	logger  logger.Logger
	config  Config

	mu             sync.Mutex
	pendingReplies map[int64]replyTarget
}

// NewRelayBot создает нового бота-ретранслятора
func NewRelayBot(conf Config, storage storage.Storage, logger logger.Logger) (*RelayBot, error) {
	pref := tele.Settings{
		Token:  conf.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бота: %w", err)
	}

	if conf.Mode == "" {
		conf.Mode = config.RoutingModeGroups
	}
	if conf.ReplyTimeout <= 0 {
		conf.ReplyTimeout = 5 * time.Minute
	}

	return &RelayBot{
		bot:            bot,
		api:            bot,
		storage:        storage,
		logger:         logger,
		config:         conf,
		pendingReplies: make(map[int64]replyTarget),
	}, nil
}

// Start запускает бота
func (rb *RelayBot) Start() error {
	rb.logger.Infof("Запуск бота-ретранслятора, режим маршрутизации: %s", rb.config.Mode)

	// Команды
	rb.bot.Handle("/start", rb.handleStart)
	rb.bot.Handle("/help", rb.handleHelp)
	rb.bot.Handle("/approve", rb.handleApproveCommand)
	rb.bot.Handle("/reject", rb.handleRejectCommand)
	rb.bot.Handle("/pending", rb.handlePendingCommand)
	rb.bot.Handle("/setalias", rb.handleSetAlias)
	rb.bot.Handle("/setgroupname", rb.handleSetGroupName)
	rb.bot.Handle("/assigngroup", rb.handleAssignGroup)
	rb.bot.Handle("/getinfo", rb.handleGetInfo)
	rb.bot.Handle("/listclients", rb.handleListClientsCommand)
	rb.bot.Handle("/addgroup", rb.handleAddGroup)
	rb.bot.Handle("/invite", rb.handleInvite)

	// Содержимое любого вида идет через общий маршрутизатор
	rb.bot.Handle(tele.OnText, rb.handleMessage)
	rb.bot.Handle(tele.OnPhoto, rb.handleMessage)
	rb.bot.Handle(tele.OnVideo, rb.handleMessage)
	rb.bot.Handle(tele.OnAudio, rb.handleMessage)
	rb.bot.Handle(tele.OnVoice, rb.handleMessage)
	rb.bot.Handle(tele.OnDocument, rb.handleMessage)

	// Inline-кнопки
	rb.bot.Handle(tele.OnCallback, rb.handleCallback)

	// Добавление бота в группу
	rb.bot.Handle(tele.OnAddedToGroup, rb.handleAddedToGroup)

	// Запуск бота
	go rb.bot.Start()

	return nil
}

// Stop останавливает бота
func (rb *RelayBot) Stop() error {
	rb.logger.Info("Остановка бота-ретранслятора")
	rb.bot.Stop()
	return nil
}

// isPrivate сообщает, пришло ли обновление из личного чата
func isPrivate(c tele.Context) bool {
	return c.Chat() != nil && c.Chat().Type == tele.ChatPrivate
}

// isGroup сообщает, пришло ли обновление из группы
func isGroup(c tele.Context) bool {
	if c.Chat() == nil {
		return false
	}
	return c.Chat().Type == tele.ChatGroup || c.Chat().Type == tele.ChatSuperGroup
}

// setReplyTarget запоминает, какому клиенту администратор пишет ответ
func (rb *RelayBot) setReplyTarget(adminID int64, clientID string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.pendingReplies[adminID] = replyTarget{clientID: clientID, setAt: time.Now()}
}

// takeReplyTarget забирает маркер ответа. Просроченный маркер снимается
// и не возвращается.
func (rb *RelayBot) takeReplyTarget(adminID int64) (string, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	target, ok := rb.pendingReplies[adminID]
	if !ok {
		return "", false
	}
	delete(rb.pendingReplies, adminID)
	if time.Since(target.setAt) > rb.config.ReplyTimeout {
		return "", false
	}
	return target.clientID, true
}

// clearReplyTarget снимает маркер ответа
func (rb *RelayBot) clearReplyTarget(adminID int64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	delete(rb.pendingReplies, adminID)
}
