package storage

import (
	"errors"

	"github.com/MrPunder/client-relay-bot/internal/models"
)

// Ошибки справочника
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrPendingNotFound = errors.New("pending client not found")
)

// Storage — справочник клиентов, групп и назначений. Единственный источник
// истины для маршрутизации; сетевых вызовов не делает. Каждая мутирующая
// операция синхронно сохраняет изменённый документ перед возвратом.
type Storage interface {
	// Методы для администраторов
	IsAdmin(adminID int64) bool
	Admins() []int64
	AddAdmin(adminID int64) error
	RemoveAdmin(adminID int64) error

	// Методы для клиентов
	GetClient(clientID string) (*models.Client, error)
	FindClientByTelegramID(telegramID int64) (*models.Client, error)
	Clients() []*models.Client
	SetAlias(clientID string, alias string) error
	DeleteClient(clientID string) error

	// Методы для заявок на доступ
	RegisterPending(pending *models.PendingClient) error
	IsPending(telegramID int64) bool
	PendingClients() []*models.PendingClient
	Approve(telegramID int64) (*models.Client, error)
	Reject(telegramID int64) error

	// Методы для групп
	AddGroup(chatID int64, name string) error
	DeleteGroup(chatID int64) error
	HasGroup(chatID int64) bool
	Groups() []*models.Group
	GroupName(chatID int64) (string, bool)
	SetGroupName(chatID int64, name string) error

	// Методы для назначений клиент -> группы
	SetAssignment(clientID string, groupID int64, present bool) error
	Assignments(clientID string) []int64

	// Методы для связок "доставленное сообщение -> клиент"
	AddMessageLink(chatID int64, messageID int, clientID string) error
	LookupMessageLink(chatID int64, messageID int) (string, bool)
	MessageLinkCount() int
	PruneMessageLinks() (int, error)
}
