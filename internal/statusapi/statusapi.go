package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrPunder/client-relay-bot/internal/admin"
	"github.com/MrPunder/client-relay-bot/internal/logger"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	"github.com/go-chi/chi/v5"
)

// StatusAPI — служебный HTTP-интерфейс рядом с ботом: состояние справочника
// и административные операции
type StatusAPI struct {
	storage   storage.Storage
	logger    logger.Logger
	passwords *admin.PasswordManager
	jwt       *admin.JWTManager
}

// NewStatusAPI создает новый набор обработчиков служебного API
func NewStatusAPI(stor storage.Storage, log logger.Logger, passwords *admin.PasswordManager, jwt *admin.JWTManager) *StatusAPI {
	return &StatusAPI{
		storage:   stor,
		logger:    log,
		passwords: passwords,
		jwt:       jwt,
	}
}

// Router собирает маршруты служебного API
func (s *StatusAPI) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/ping", s.handlePing)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/admin/login", s.handleLogin)

	r.Group(func(pr chi.Router) {
		authMiddleware := admin.NewAuthMiddleware(s.jwt, s.logger)
		pr.Use(authMiddleware.Middleware)
		pr.Get("/api/admin/clients", s.handleClients)
		pr.Post("/api/admin/prunelinks", s.handlePruneLinks)
	})

	return r
}

// handlePing обрабатывает проверку живости
func (s *StatusAPI) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// statusResponse — сводка по справочнику
type statusResponse struct {
	Clients      int `json:"clients"`
	Pending      int `json:"pending"`
	Groups       int `json:"groups"`
	Admins       int `json:"admins"`
	MessageLinks int `json:"message_links"`
}

// handleStatus возвращает сводные счетчики
func (s *StatusAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Clients:      len(s.storage.Clients()),
		Pending:      len(s.storage.PendingClients()),
		Groups:       len(s.storage.Groups()),
		Admins:       len(s.storage.Admins()),
		MessageLinks: s.storage.MessageLinkCount(),
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// loginRequest — тело запроса аутентификации
type loginRequest struct {
	Password string `json:"password"`
}

// handleLogin проверяет пароль администратора и выдает JWT
func (s *StatusAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Некорректное тело запроса", http.StatusBadRequest)
		return
	}

	if err := s.passwords.VerifyPassword(req.Password); err != nil {
		if errors.Is(err, admin.ErrPasswordNotSet) {
			http.Error(w, "Пароль администратора не установлен", http.StatusForbidden)
			return
		}
		s.logger.Errorf("Неудачная попытка входа администратора: %v", err)
		http.Error(w, "Неверный пароль", http.StatusUnauthorized)
		return
	}

	token, err := s.jwt.GenerateToken()
	if err != nil {
		s.logger.Errorf("Ошибка генерации токена: %v", err)
		http.Error(w, "Внутренняя ошибка", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "admin_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// clientRecord — запись клиента в выгрузке справочника
type clientRecord struct {
	ID         string  `json:"id"`
	TelegramID int64   `json:"telegram_id"`
	Alias      string  `json:"alias,omitempty"`
	Status     string  `json:"status"`
	Groups     []int64 `json:"groups"`
}

// handleClients возвращает полную выгрузку клиентов с назначениями
func (s *StatusAPI) handleClients(w http.ResponseWriter, r *http.Request) {
	clients := s.storage.Clients()
	records := make([]clientRecord, 0, len(clients))
	for _, client := range clients {
		records = append(records, clientRecord{
			ID:         client.Id,
			TelegramID: client.TelegramID,
			Alias:      client.Alias,
			Status:     client.Status,
			Groups:     s.storage.Assignments(client.Id),
		})
	}

	s.writeJSON(w, http.StatusOK, records)
}

// handlePruneLinks вычищает связки сообщений удаленных клиентов
func (s *StatusAPI) handlePruneLinks(w http.ResponseWriter, r *http.Request) {
	pruned, err := s.storage.PruneMessageLinks()
	if err != nil {
		s.logger.Errorf("Ошибка чистки связок сообщений: %v", err)
		http.Error(w, "Внутренняя ошибка", http.StatusInternalServerError)
		return
	}

	s.logger.Infof("Чистка связок сообщений: удалено %d", pruned)
	s.writeJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

// writeJSON сериализует ответ
func (s *StatusAPI) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Ошибка сериализации ответа: %v", err)
	}
}
