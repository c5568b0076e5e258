package models

import (
	"fmt"
	"time"
)

// Статусы клиента
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Client представляет одобренного клиента, чьи сообщения ретранслируются ботом.
// Ключом записи в документе служит короткий идентификатор клиента (поле Id).
type Client struct {
	Id         string `json:"-"`
	TelegramID int64  `json:"telegram_id"`
	Alias      string `json:"alias,omitempty"`
	Status     string `json:"status"`
}

// DisplayName возвращает подпись клиента для пересылаемых сообщений:
// алиас, если задан, иначе синтетическое имя по Telegram ID.
func (c *Client) DisplayName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return fmt.Sprintf("User%d", c.TelegramID)
}

// PendingClient представляет заявку на доступ, ожидающую решения администратора
type PendingClient struct {
	TelegramID int64     `json:"-"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// DisplayName возвращает подпись заявки: username, затем имя, затем
// синтетическое имя по Telegram ID
func (p *PendingClient) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if p.FirstName != "" {
		return p.FirstName
	}
	return fmt.Sprintf("User%d", p.TelegramID)
}

// Group представляет авторизованный групповой чат-получатель
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MessageLinkKey формирует ключ связки "доставленное сообщение -> клиент"
func MessageLinkKey(chatID int64, messageID int) string {
	return fmt.Sprintf("%d_%d", chatID, messageID)
}

// GetCurrentTime возвращает текущее время
func GetCurrentTime() time.Time {
	return time.Now()
}
