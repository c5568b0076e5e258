package storage

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/MrPunder/client-relay-bot/internal/models"
	"github.com/google/uuid"
)

// DefaultLinkLimit — предельное число связок сообщений по умолчанию
const DefaultLinkLimit = 5000

// Memstorage реализует интерфейс Storage с хранением данных в памяти.
// Используется в тестах и как основа для отладочных запусков.
type Memstorage struct {
	mu          sync.RWMutex
	admins      map[int64]struct{}
	clients     map[string]*models.Client
	pending     map[int64]*models.PendingClient
	groups      map[int64]string
	assignments map[string]map[int64]struct{}
	links       map[string]string
	linkLimit   int
}

func NewMemstorage() *Memstorage {
	return &Memstorage{
		admins:      make(map[int64]struct{}),
		clients:     make(map[string]*models.Client),
		pending:     make(map[int64]*models.PendingClient),
		groups:      make(map[int64]string),
		assignments: make(map[string]map[int64]struct{}),
		links:       make(map[string]string),
		linkLimit:   DefaultLinkLimit,
	}
}

// generateClientID генерирует короткий уникальный идентификатор клиента.
// Повторяет попытку, пока идентификатор не окажется свободным.
func generateClientID(taken func(id string) bool) string {
	for {
		id := uuid.New().String()[:8]
		if !taken(id) {
			return id
		}
	}
}

// splitLinkKey разбирает ключ связки "<chatID>_<messageID>"
func splitLinkKey(key string) (chatID int64, messageID int, ok bool) {
	i := strings.LastIndex(key, "_")
	if i <= 0 {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return 0, 0, false
	}
	return chatID, messageID, true
}

// evictOldestLink удаляет самую старую связку самого загруженного чата:
// message_id монотонно растут только внутри одного чата, поэтому сравнивать
// их между чатами нельзя. Жертвой становится наименьший message_id в чате
// с наибольшим числом связок, свежая связка малоактивного чата переживает
// залежи активного.
func evictOldestLink(links map[string]string) {
	counts := make(map[int64]int)
	for key := range links {
		chatID, _, ok := splitLinkKey(key)
		if !ok {
			// Некорректный ключ вытесняем в первую очередь
			delete(links, key)
			return
		}
		counts[chatID]++
	}

	var busiest int64
	most := 0
	for chatID, n := range counts {
		if n > most {
			busiest = chatID
			most = n
		}
	}

	oldestKey := ""
	oldestID := 0
	for key := range links {
		chatID, messageID, _ := splitLinkKey(key)
		if chatID != busiest {
			continue
		}
		if oldestKey == "" || messageID < oldestID {
			oldestKey = key
			oldestID = messageID
		}
	}
	if oldestKey != "" {
		delete(links, oldestKey)
	}
}

// ==================== МЕТОДЫ ДЛЯ АДМИНИСТРАТОРОВ ====================

func (m *Memstorage) IsAdmin(adminID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.admins[adminID]
	return ok
}

func (m *Memstorage) Admins() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	admins := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		admins = append(admins, id)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i] < admins[j] })
	return admins
}

func (m *Memstorage) AddAdmin(adminID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.admins[adminID] = struct{}{}
	return nil
}

func (m *Memstorage) RemoveAdmin(adminID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.admins, adminID)
	return nil
}

// ==================== МЕТОДЫ ДЛЯ КЛИЕНТОВ ====================

func (m *Memstorage) GetClient(clientID string) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	// Наружу уходит копия: живую запись читали бы вне блокировки
	c := *client
	return &c, nil
}

func (m *Memstorage) FindClientByTelegramID(telegramID int64) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if client.TelegramID == telegramID {
			c := *client
			return &c, nil
		}
	}
	return nil, ErrClientNotFound
}

func (m *Memstorage) Clients() []*models.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*models.Client, 0, len(m.clients))
	for _, client := range m.clients {
		c := *client
		clients = append(clients, &c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Id < clients[j].Id })
	return clients
}

func (m *Memstorage) SetAlias(clientID string, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	client.Alias = alias
	return nil
}

func (m *Memstorage) DeleteClient(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	// Удаляем клиента вместе с назначениями, заявкой и связками сообщений
	delete(m.clients, clientID)
	delete(m.assignments, clientID)
	delete(m.pending, client.TelegramID)
	for key, linked := range m.links {
		if linked == clientID {
			delete(m.links, key)
		}
	}
	return nil
}

// ==================== МЕТОДЫ ДЛЯ ЗАЯВОК ====================

func (m *Memstorage) RegisterPending(pending *models.PendingClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[pending.TelegramID] = pending
	return nil
}

func (m *Memstorage) IsPending(telegramID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.pending[telegramID]
	return ok
}

func (m *Memstorage) PendingClients() []*models.PendingClient {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]*models.PendingClient, 0, len(m.pending))
	for _, p := range m.pending {
		pc := *p
		pending = append(pending, &pc)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].TelegramID < pending[j].TelegramID })
	return pending
}

func (m *Memstorage) Approve(telegramID int64) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[telegramID]; !ok {
		return nil, ErrPendingNotFound
	}

	client := &models.Client{
		Id:         generateClientID(func(id string) bool { _, taken := m.clients[id]; return taken }),
		TelegramID: telegramID,
		Status:     models.StatusApproved,
	}
	m.clients[client.Id] = client
	delete(m.pending, telegramID)

	c := *client
	return &c, nil
}

func (m *Memstorage) Reject(telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Повторный отказ — no-op
	delete(m.pending, telegramID)
	return nil
}

// ==================== МЕТОДЫ ДЛЯ ГРУПП ====================

func (m *Memstorage) AddGroup(chatID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[chatID] = name
	return nil
}

func (m *Memstorage) DeleteGroup(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[chatID]; !ok {
		return ErrGroupNotFound
	}

	delete(m.groups, chatID)

	// Вычищаем назначения и связки, ссылающиеся на удалённую группу
	for clientID, groups := range m.assignments {
		delete(groups, chatID)
		if len(groups) == 0 {
			delete(m.assignments, clientID)
		}
	}
	for key := range m.links {
		linkChatID, _, ok := splitLinkKey(key)
		if ok && linkChatID == chatID {
			delete(m.links, key)
		}
	}
	return nil
}

func (m *Memstorage) HasGroup(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.groups[chatID]
	return ok
}

func (m *Memstorage) Groups() []*models.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]*models.Group, 0, len(m.groups))
	for id, name := range m.groups {
		groups = append(groups, &models.Group{ID: id, Name: name})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func (m *Memstorage) GroupName(chatID int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.groups[chatID]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (m *Memstorage) SetGroupName(chatID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[chatID]; !ok {
		return ErrGroupNotFound
	}
	m.groups[chatID] = name
	return nil
}

// ==================== МЕТОДЫ ДЛЯ НАЗНАЧЕНИЙ ====================

func (m *Memstorage) SetAssignment(clientID string, groupID int64, present bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[clientID]; !ok {
		return ErrClientNotFound
	}

	if present {
		// Назначение может ссылаться только на существующую группу
		if _, ok := m.groups[groupID]; !ok {
			return ErrGroupNotFound
		}
		if m.assignments[clientID] == nil {
			m.assignments[clientID] = make(map[int64]struct{})
		}
		m.assignments[clientID][groupID] = struct{}{}
		return nil
	}

	delete(m.assignments[clientID], groupID)
	if len(m.assignments[clientID]) == 0 {
		delete(m.assignments, clientID)
	}
	return nil
}

func (m *Memstorage) Assignments(clientID string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]int64, 0, len(m.assignments[clientID]))
	for id := range m.assignments[clientID] {
		groups = append(groups, id)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// ==================== МЕТОДЫ ДЛЯ СВЯЗОК СООБЩЕНИЙ ====================

func (m *Memstorage) AddMessageLink(chatID int64, messageID int, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.links) >= m.linkLimit {
		evictOldestLink(m.links)
	}
	m.links[models.MessageLinkKey(chatID, messageID)] = clientID
	return nil
}

func (m *Memstorage) LookupMessageLink(chatID int64, messageID int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clientID, ok := m.links[models.MessageLinkKey(chatID, messageID)]
	return clientID, ok
}

func (m *Memstorage) MessageLinkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.links)
}

func (m *Memstorage) PruneMessageLinks() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for key, clientID := range m.links {
		if _, ok := m.clients[clientID]; !ok {
			delete(m.links, key)
			pruned++
		}
	}
	for len(m.links) > m.linkLimit {
		evictOldestLink(m.links)
		pruned++
	}
	return pruned, nil
}
