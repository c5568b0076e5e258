package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrPunder/client-relay-bot/internal/admin"
	"github.com/MrPunder/client-relay-bot/internal/config"
	"github.com/MrPunder/client-relay-bot/internal/logger"
	"github.com/MrPunder/client-relay-bot/internal/middleware"
	"github.com/MrPunder/client-relay-bot/internal/statusapi"
	"github.com/MrPunder/client-relay-bot/internal/storage"
	"github.com/MrPunder/client-relay-bot/internal/telegrambot"
)

func main() {
	configPath := flag.String("c", "", "Путь к файлу конфигурации")
	tokenFlag := flag.String("token", "", "Токен бота (перекрывает файл с токеном)")
	tokenFile := flag.String("token-file", "", "Путь к файлу с токеном бота")
	adminID := flag.Int64("admin", 0, "Telegram ID администратора для начальной настройки")
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}

	conf, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		conf.Storage.DataDir = dataDir
	}

	log, err := logger.NewZapLogger(conf.Log)
	if err != nil {
		fmt.Printf("Ошибка создания логгера: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	token, err := resolveToken(*tokenFlag, *tokenFile, conf)
	if err != nil {
		log.Errorf("Не удалось получить токен бота: %v", err)
		os.Exit(1)
	}

	stor, err := storage.NewFilestorage(conf.Storage.DataDir, conf.Routing.LinkLimit)
	if err != nil {
		log.Errorf("Ошибка создания хранилища: %v", err)
		os.Exit(1)
	}

	// Первый администратор заводится флагом при развертывании
	if *adminID != 0 && !stor.IsAdmin(*adminID) {
		if err := stor.AddAdmin(*adminID); err != nil {
			log.Errorf("Ошибка добавления администратора %d: %v", *adminID, err)
			os.Exit(1)
		}
		log.Infof("Добавлен администратор %d", *adminID)
	}
	if len(stor.Admins()) == 0 {
		log.Error("Не задан ни один администратор, заявки будет некому рассматривать. Запустите с флагом -admin=<telegram id>.")
	}

	bot, err := telegrambot.NewRelayBot(telegrambot.Config{
		Token:        token,
		Mode:         conf.Routing.Mode,
		ReplyTimeout: conf.Routing.ReplyTimeout,
	}, stor, log)
	if err != nil {
		log.Errorf("Ошибка создания бота: %v", err)
		os.Exit(1)
	}

	if err := bot.Start(); err != nil {
		log.Errorf("Ошибка запуска бота: %v", err)
		os.Exit(1)
	}

	var statusServer *statusapi.StatusServer
	if conf.Status.Enabled {
		statusServer, err = startStatusServer(conf, stor, log)
		if err != nil {
			log.Errorf("Ошибка запуска служебного API: %v", err)
			os.Exit(1)
		}
	}

	// Ожидаем сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Получен сигнал завершения")
	bot.Stop()

	if statusServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(ctx); err != nil {
			log.Errorf("Ошибка остановки служебного API: %v", err)
		}
	}

	log.Info("Бот остановлен")
}

// resolveToken получает токен бота: флаг, переменная окружения, файл
func resolveToken(tokenFlag string, tokenFile string, conf *config.Config) (string, error) {
	if tokenFlag != "" {
		return tokenFlag, nil
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		return token, nil
	}

	path := tokenFile
	if path == "" {
		path = conf.Telegram.TokenPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения файла токена %s: %w", path, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("файл токена %s пуст", path)
	}
	return token, nil
}

// startStatusServer поднимает HTTP-сервер состояния рядом с ботом
func startStatusServer(conf *config.Config, stor storage.Storage, log *logger.ZapLogger) (*statusapi.StatusServer, error) {
	passwords := admin.NewPasswordManager(conf.Storage.DataDir)
	if password, err := passwords.InitializeDefaultPassword(); err != nil {
		return nil, fmt.Errorf("ошибка инициализации пароля администратора: %w", err)
	} else if password != "" {
		log.Infof("Сгенерирован пароль администратора API: %s", password)
	}

	jwtSecret := conf.Status.JWTSecret
	if jwtSecret == "" {
		secret, err := admin.GenerateRandomPassword(32)
		if err != nil {
			return nil, fmt.Errorf("ошибка генерации JWT-секрета: %w", err)
		}
		jwtSecret = secret
	}

	api := statusapi.NewStatusAPI(stor, log, passwords, admin.NewJWTManager(jwtSecret))
	server := statusapi.NewStatusServer(conf.Status.RunAddress, api.Router(), log)

	tokenAuth := middleware.NewTokenAuth(middleware.TokenAuthConfig{
		APIToken: conf.Status.APIToken,
		Logger:   log,
	})
	httpLogger := middleware.NewHTTPLoger(log)
	server.AddMiddleware(tokenAuth.Middleware, httpLogger.HTTPLogHandler)

	go server.RunServer()
	return server, nil
}
