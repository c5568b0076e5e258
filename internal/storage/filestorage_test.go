package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrPunder/client-relay-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilestorageReload(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFilestorage(dir, 0)
	require.NoError(t, err)

	require.NoError(t, fs.AddAdmin(111))
	require.NoError(t, fs.AddGroup(-100, "support"))
	client := approveClient(t, fs, 555)
	require.NoError(t, fs.SetAlias(client.Id, "VIP"))
	require.NoError(t, fs.SetAssignment(client.Id, -100, true))
	require.NoError(t, fs.AddMessageLink(-100, 42, client.Id))
	require.NoError(t, fs.RegisterPending(&models.PendingClient{
		TelegramID: 777,
		Username:   "petr",
		Timestamp:  models.GetCurrentTime(),
	}))

	// Второй экземпляр читает те же документы
	reloaded, err := NewFilestorage(dir, 0)
	require.NoError(t, err)

	assert.True(t, reloaded.IsAdmin(111))
	assert.True(t, reloaded.HasGroup(-100))
	name, ok := reloaded.GroupName(-100)
	require.True(t, ok)
	assert.Equal(t, "support", name)

	got, err := reloaded.GetClient(client.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(555), got.TelegramID)
	assert.Equal(t, "VIP", got.Alias)
	assert.Equal(t, models.StatusApproved, got.Status)

	assert.Equal(t, []int64{-100}, reloaded.Assignments(client.Id))
	linked, ok := reloaded.LookupMessageLink(-100, 42)
	require.True(t, ok)
	assert.Equal(t, client.Id, linked)
	assert.True(t, reloaded.IsPending(777))
}

// TestFilestorageDocumentFormat фиксирует дисковый формат документов: ключи
// словарей и форму связок сообщений
func TestFilestorageDocumentFormat(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFilestorage(dir, 0)
	require.NoError(t, err)

	require.NoError(t, fs.AddAdmin(111))
	require.NoError(t, fs.AddGroup(-1001234, "support"))
	client := approveClient(t, fs, 555)
	require.NoError(t, fs.SetAssignment(client.Id, -1001234, true))
	require.NoError(t, fs.AddMessageLink(-1001234, 42, client.Id))

	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"ADMIN_IDS", "GROUP_IDS", "GROUP_NAMES",
		"PENDING_CLIENTS", "CLIENT_GROUP_ASSIGNMENTS", "MESSAGE_LINK_MAP",
	} {
		assert.Contains(t, raw, key)
	}

	var links map[string]string
	require.NoError(t, json.Unmarshal(raw["MESSAGE_LINK_MAP"], &links))
	assert.Equal(t, client.Id, links["-1001234_42"])

	var names map[string]string
	require.NoError(t, json.Unmarshal(raw["GROUP_NAMES"], &names))
	assert.Equal(t, "support", names["-1001234"])

	clientData, err := os.ReadFile(filepath.Join(dir, ClientsFileName))
	require.NoError(t, err)
	var clients map[string]map[string]any
	require.NoError(t, json.Unmarshal(clientData, &clients))
	require.Contains(t, clients, client.Id)
	assert.Equal(t, float64(555), clients[client.Id]["telegram_id"])
	assert.Equal(t, "approved", clients[client.Id]["status"])
}

func TestFilestorageEmptyAndMissingDocuments(t *testing.T) {
	dir := t.TempDir()

	// Пустые файлы допустимы
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientsFileName), nil, 0644))

	fs, err := NewFilestorage(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, fs.Clients())
	assert.Empty(t, fs.Groups())

	// Несуществующая директория создается
	nested := filepath.Join(dir, "a", "b")
	_, err = NewFilestorage(nested, 0)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(nested, ConfigFileName))
	require.NoError(t, err)
}

// TestFilestorageSelfHeal проверяет починку подвисших ссылок при загрузке:
// заявка при уже одобренном клиенте и назначения на несуществующие группы
func TestFilestorageSelfHeal(t *testing.T) {
	dir := t.TempDir()

	configDoc := map[string]any{
		"ADMIN_IDS":   []int64{111},
		"GROUP_IDS":   []int64{-100},
		"GROUP_NAMES": map[string]string{},
		"PENDING_CLIENTS": map[string]any{
			"555": map[string]any{"username": "ivan", "first_name": "Ivan"},
		},
		"CLIENT_GROUP_ASSIGNMENTS": map[string][]int64{
			"abcd1234": {-100, -999}, // -999 не существует
			"ghost999": {-100},       // клиента нет
		},
		"MESSAGE_LINK_MAP": map[string]string{},
	}
	clientsDoc := map[string]any{
		"abcd1234": map[string]any{"telegram_id": 555, "status": "approved"},
	}

	configData, err := json.Marshal(configDoc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), configData, 0644))
	clientsData, err := json.Marshal(clientsDoc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientsFileName), clientsData, 0644))

	fs, err := NewFilestorage(dir, 0)
	require.NoError(t, err)

	// Клиент 555 уже одобрен, заявка снята
	assert.False(t, fs.IsPending(555))
	assert.Equal(t, []int64{-100}, fs.Assignments("abcd1234"))
	assert.Empty(t, fs.Assignments("ghost999"))
}

func TestFilestorageNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFilestorage(dir, 0)
	require.NoError(t, err)
	require.NoError(t, fs.AddAdmin(111))
	approveClient(t, fs, 555)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}
