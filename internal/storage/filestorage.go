package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/MrPunder/client-relay-bot/internal/models"
)

// Константы для имен файлов
const (
	ConfigFileName  = "config.json"
	ClientsFileName = "client_data.json"
)

// configDocument — дисковый формат общего документа справочника
type configDocument struct {
	AdminIDs       []int64                          `json:"ADMIN_IDS"`
	GroupIDs       []int64                          `json:"GROUP_IDS"`
	GroupNames     map[string]string                `json:"GROUP_NAMES"`
	PendingClients map[string]*models.PendingClient `json:"PENDING_CLIENTS"`
	Assignments    map[string][]int64               `json:"CLIENT_GROUP_ASSIGNMENTS"`
	MessageLinks   map[string]string                `json:"MESSAGE_LINK_MAP"`
}

// Filestorage реализует интерфейс Storage с хранением данных в двух
// JSON-документах. Каждая мутация переписывает затронутый документ целиком;
// запись идёт во временный файл с последующим переименованием, чтобы сбой
// процесса не оставил усечённый документ.
type Filestorage struct {
	mu          sync.RWMutex
	admins      map[int64]struct{}
	clients     map[string]*models.Client
	pending     map[int64]*models.PendingClient
	groups      map[int64]string
	assignments map[string]map[int64]struct{}
	links       map[string]string
	linkLimit   int
	dataDir     string
}

// NewFilestorage создает файловое хранилище и загружает оба документа
func NewFilestorage(dataDir string, linkLimit int) (*Filestorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if linkLimit <= 0 {
		linkLimit = DefaultLinkLimit
	}

	fs := &Filestorage{
		admins:      make(map[int64]struct{}),
		clients:     make(map[string]*models.Client),
		pending:     make(map[int64]*models.PendingClient),
		groups:      make(map[int64]string),
		assignments: make(map[string]map[int64]struct{}),
		links:       make(map[string]string),
		linkLimit:   linkLimit,
		dataDir:     dataDir,
	}

	if err := fs.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return fs, nil
}

// writeFileAtomic пишет документ во временный файл и переименовывает его
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// loadData загружает оба документа и чинит подвисшие ссылки, которые мог
// оставить сбой между двумя связанными мутациями
func (fs *Filestorage) loadData() error {
	if err := fs.loadClients(); err != nil {
		return err
	}
	if err := fs.loadConfig(); err != nil {
		return err
	}

	// Заявка и одобренный клиент для одного Telegram ID взаимоисключающи
	for telegramID := range fs.pending {
		for _, client := range fs.clients {
			if client.TelegramID == telegramID {
				delete(fs.pending, telegramID)
				break
			}
		}
	}

	// Назначения могут ссылаться только на существующих клиентов и группы
	for clientID, groups := range fs.assignments {
		if _, ok := fs.clients[clientID]; !ok {
			delete(fs.assignments, clientID)
			continue
		}
		for groupID := range groups {
			if _, ok := fs.groups[groupID]; !ok {
				delete(groups, groupID)
			}
		}
		if len(groups) == 0 {
			delete(fs.assignments, clientID)
		}
	}

	return nil
}

// loadConfig загружает общий документ справочника
func (fs *Filestorage) loadConfig() error {
	filePath := filepath.Join(fs.dataDir, ConfigFileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// Файл не существует, создаем пустой документ
		return fs.saveConfig()
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config document: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var doc configDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal config document: %w", err)
	}

	for _, id := range doc.AdminIDs {
		fs.admins[id] = struct{}{}
	}
	for _, id := range doc.GroupIDs {
		fs.groups[id] = doc.GroupNames[strconv.FormatInt(id, 10)]
	}
	for key, pending := range doc.PendingClients {
		telegramID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		pending.TelegramID = telegramID
		fs.pending[telegramID] = pending
	}
	for clientID, groups := range doc.Assignments {
		set := make(map[int64]struct{}, len(groups))
		for _, id := range groups {
			set[id] = struct{}{}
		}
		fs.assignments[clientID] = set
	}
	for key, clientID := range doc.MessageLinks {
		fs.links[key] = clientID
	}

	return nil
}

// loadClients загружает документ клиентов
func (fs *Filestorage) loadClients() error {
	filePath := filepath.Join(fs.dataDir, ClientsFileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fs.saveClients()
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read clients document: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var clients map[string]*models.Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return fmt.Errorf("failed to unmarshal clients document: %w", err)
	}

	for clientID, client := range clients {
		client.Id = clientID
		fs.clients[clientID] = client
	}

	return nil
}

// saveConfig сохраняет общий документ справочника
func (fs *Filestorage) saveConfig() error {
	doc := configDocument{
		AdminIDs:       make([]int64, 0, len(fs.admins)),
		GroupIDs:       make([]int64, 0, len(fs.groups)),
		GroupNames:     make(map[string]string),
		PendingClients: make(map[string]*models.PendingClient),
		Assignments:    make(map[string][]int64),
		MessageLinks:   make(map[string]string),
	}

	for id := range fs.admins {
		doc.AdminIDs = append(doc.AdminIDs, id)
	}
	sort.Slice(doc.AdminIDs, func(i, j int) bool { return doc.AdminIDs[i] < doc.AdminIDs[j] })

	for id, name := range fs.groups {
		doc.GroupIDs = append(doc.GroupIDs, id)
		if name != "" {
			doc.GroupNames[strconv.FormatInt(id, 10)] = name
		}
	}
	sort.Slice(doc.GroupIDs, func(i, j int) bool { return doc.GroupIDs[i] < doc.GroupIDs[j] })

	for telegramID, pending := range fs.pending {
		doc.PendingClients[strconv.FormatInt(telegramID, 10)] = pending
	}

	for clientID, groups := range fs.assignments {
		ids := make([]int64, 0, len(groups))
		for id := range groups {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		doc.Assignments[clientID] = ids
	}

	for key, clientID := range fs.links {
		doc.MessageLinks[key] = clientID
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config document: %w", err)
	}

	filePath := filepath.Join(fs.dataDir, ConfigFileName)
	if err := writeFileAtomic(filePath, data); err != nil {
		return fmt.Errorf("failed to write config document: %w", err)
	}

	return nil
}

// saveClients сохраняет документ клиентов
func (fs *Filestorage) saveClients() error {
	data, err := json.MarshalIndent(fs.clients, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal clients document: %w", err)
	}

	filePath := filepath.Join(fs.dataDir, ClientsFileName)
	if err := writeFileAtomic(filePath, data); err != nil {
		return fmt.Errorf("failed to write clients document: %w", err)
	}

	return nil
}

// ==================== МЕТОДЫ ДЛЯ АДМИНИСТРАТОРОВ ====================

func (fs *Filestorage) IsAdmin(adminID int64) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.admins[adminID]
	return ok
}

func (fs *Filestorage) Admins() []int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	admins := make([]int64, 0, len(fs.admins))
	for id := range fs.admins {
		admins = append(admins, id)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i] < admins[j] })
	return admins
}

func (fs *Filestorage) AddAdmin(adminID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.admins[adminID] = struct{}{}
	return fs.saveConfig()
}

func (fs *Filestorage) RemoveAdmin(adminID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.admins, adminID)
	return fs.saveConfig()
}

// ==================== МЕТОДЫ ДЛЯ КЛИЕНТОВ ====================

func (fs *Filestorage) GetClient(clientID string) (*models.Client, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	client, ok := fs.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	// Наружу уходит копия: живую запись читали бы вне блокировки
	c := *client
	return &c, nil
}

func (fs *Filestorage) FindClientByTelegramID(telegramID int64) (*models.Client, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, client := range fs.clients {
		if client.TelegramID == telegramID {
			c := *client
			return &c, nil
		}
	}
	return nil, ErrClientNotFound
}

func (fs *Filestorage) Clients() []*models.Client {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	clients := make([]*models.Client, 0, len(fs.clients))
	for _, client := range fs.clients {
		c := *client
		clients = append(clients, &c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Id < clients[j].Id })
	return clients
}

func (fs *Filestorage) SetAlias(clientID string, alias string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	client, ok := fs.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	client.Alias = alias
	return fs.saveClients()
}

func (fs *Filestorage) DeleteClient(clientID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	client, ok := fs.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	// Три логических удаления — одна запись каждого документа
	delete(fs.clients, clientID)
	delete(fs.assignments, clientID)
	delete(fs.pending, client.TelegramID)
	for key, linked := range fs.links {
		if linked == clientID {
			delete(fs.links, key)
		}
	}

	if err := fs.saveClients(); err != nil {
		return err
	}
	return fs.saveConfig()
}

// ==================== МЕТОДЫ ДЛЯ ЗАЯВОК ====================

func (fs *Filestorage) RegisterPending(pending *models.PendingClient) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.pending[pending.TelegramID] = pending
	return fs.saveConfig()
}

func (fs *Filestorage) IsPending(telegramID int64) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.pending[telegramID]
	return ok
}

func (fs *Filestorage) PendingClients() []*models.PendingClient {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	pending := make([]*models.PendingClient, 0, len(fs.pending))
	for _, p := range fs.pending {
		pc := *p
		pending = append(pending, &pc)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].TelegramID < pending[j].TelegramID })
	return pending
}

func (fs *Filestorage) Approve(telegramID int64) (*models.Client, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.pending[telegramID]; !ok {
		return nil, ErrPendingNotFound
	}

	client := &models.Client{
		Id:         generateClientID(func(id string) bool { _, taken := fs.clients[id]; return taken }),
		TelegramID: telegramID,
		Status:     models.StatusApproved,
	}
	fs.clients[client.Id] = client
	delete(fs.pending, telegramID)

	// Сначала документ клиентов: если запись заявок не успеет, загрузка
	// восстановит взаимоисключение сама
	if err := fs.saveClients(); err != nil {
		return nil, err
	}
	if err := fs.saveConfig(); err != nil {
		return nil, err
	}

	c := *client
	return &c, nil
}

func (fs *Filestorage) Reject(telegramID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.pending[telegramID]; !ok {
		// Повторный отказ — no-op
		return nil
	}
	delete(fs.pending, telegramID)
	return fs.saveConfig()
}

// ==================== МЕТОДЫ ДЛЯ ГРУПП ====================

func (fs *Filestorage) AddGroup(chatID int64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.groups[chatID] = name
	return fs.saveConfig()
}

func (fs *Filestorage) DeleteGroup(chatID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.groups[chatID]; !ok {
		return ErrGroupNotFound
	}

	delete(fs.groups, chatID)

	for clientID, groups := range fs.assignments {
		delete(groups, chatID)
		if len(groups) == 0 {
			delete(fs.assignments, clientID)
		}
	}
	for key := range fs.links {
		linkChatID, _, ok := splitLinkKey(key)
		if ok && linkChatID == chatID {
			delete(fs.links, key)
		}
	}
	return fs.saveConfig()
}

func (fs *Filestorage) HasGroup(chatID int64) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.groups[chatID]
	return ok
}

func (fs *Filestorage) Groups() []*models.Group {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	groups := make([]*models.Group, 0, len(fs.groups))
	for id, name := range fs.groups {
		groups = append(groups, &models.Group{ID: id, Name: name})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func (fs *Filestorage) GroupName(chatID int64) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	name, ok := fs.groups[chatID]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (fs *Filestorage) SetGroupName(chatID int64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.groups[chatID]; !ok {
		return ErrGroupNotFound
	}
	fs.groups[chatID] = name
	return fs.saveConfig()
}

// ==================== МЕТОДЫ ДЛЯ НАЗНАЧЕНИЙ ====================

func (fs *Filestorage) SetAssignment(clientID string, groupID int64, present bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.clients[clientID]; !ok {
		return ErrClientNotFound
	}

	if present {
		if _, ok := fs.groups[groupID]; !ok {
			return ErrGroupNotFound
		}
		if fs.assignments[clientID] == nil {
			fs.assignments[clientID] = make(map[int64]struct{})
		}
		fs.assignments[clientID][groupID] = struct{}{}
	} else {
		delete(fs.assignments[clientID], groupID)
		if len(fs.assignments[clientID]) == 0 {
			delete(fs.assignments, clientID)
		}
	}
	return fs.saveConfig()
}

func (fs *Filestorage) Assignments(clientID string) []int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	groups := make([]int64, 0, len(fs.assignments[clientID]))
	for id := range fs.assignments[clientID] {
		groups = append(groups, id)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// ==================== МЕТОДЫ ДЛЯ СВЯЗОК СООБЩЕНИЙ ====================

func (fs *Filestorage) AddMessageLink(chatID int64, messageID int, clientID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for len(fs.links) >= fs.linkLimit {
		evictOldestLink(fs.links)
	}
	fs.links[models.MessageLinkKey(chatID, messageID)] = clientID
	return fs.saveConfig()
}

func (fs *Filestorage) LookupMessageLink(chatID int64, messageID int) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	clientID, ok := fs.links[models.MessageLinkKey(chatID, messageID)]
	return clientID, ok
}

func (fs *Filestorage) MessageLinkCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return len(fs.links)
}

func (fs *Filestorage) PruneMessageLinks() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	pruned := 0
	for key, clientID := range fs.links {
		if _, ok := fs.clients[clientID]; !ok {
			delete(fs.links, key)
			pruned++
		}
	}
	for len(fs.links) > fs.linkLimit {
		evictOldestLink(fs.links)
		pruned++
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, fs.saveConfig()
}
