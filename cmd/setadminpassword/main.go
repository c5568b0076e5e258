package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrPunder/client-relay-bot/internal/admin"
	"github.com/MrPunder/client-relay-bot/internal/config"
)

func main() {
	configPath := flag.String("c", "", "Путь к файлу конфигурации")
	password := flag.String("password", "", "Новый пароль администратора (минимум 8 символов)")
	flag.Parse()

	if *password == "" {
		fmt.Println("Ошибка: пароль не указан")
		fmt.Println("Использование: setadminpassword -password=НОВЫЙ_ПАРОЛЬ [-c config.yaml]")
		os.Exit(1)
	}

	conf, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(conf.Storage.DataDir, 0755); err != nil {
		fmt.Printf("Ошибка создания директории данных: %v\n", err)
		os.Exit(1)
	}

	passwordMgr := admin.NewPasswordManager(conf.Storage.DataDir)
	if err := passwordMgr.SetPassword(*password); err != nil {
		fmt.Printf("Ошибка установки пароля: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Пароль администратора успешно установлен")
}
