package admin

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Стоимость хеширования bcrypt
	bcryptCost = 12
	// Имя файла для хранения хеша пароля
	passwordFileName = "admin_password.hash"
)

var (
	ErrPasswordTooShort = errors.New("пароль слишком короткий (минимум 8 символов)")
	ErrInvalidPassword  = errors.New("неверный пароль")
	ErrPasswordNotSet   = errors.New("пароль администратора не установлен")
)

// PasswordManager управляет паролем администратора: хеш хранится в файле
// рядом с документами справочника
type PasswordManager struct {
	passwordFilePath string
}

// NewPasswordManager создает новый менеджер паролей
func NewPasswordManager(dataDir string) *PasswordManager {
	return &PasswordManager{
		passwordFilePath: filepath.Join(dataDir, passwordFileName),
	}
}

// IsPasswordSet проверяет, установлен ли пароль администратора
func (pm *PasswordManager) IsPasswordSet() bool {
	_, err := os.Stat(pm.passwordFilePath)
	return err == nil
}

// SetPassword устанавливает новый пароль администратора
func (pm *PasswordManager) SetPassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	if err := os.WriteFile(pm.passwordFilePath, hashedPassword, 0600); err != nil {
		return fmt.Errorf("ошибка записи хеша пароля: %w", err)
	}

	return nil
}

// VerifyPassword проверяет пароль администратора
func (pm *PasswordManager) VerifyPassword(password string) error {
	if !pm.IsPasswordSet() {
		return ErrPasswordNotSet
	}

	hashedPassword, err := os.ReadFile(pm.passwordFilePath)
	if err != nil {
		return fmt.Errorf("ошибка чтения хеша пароля: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(hashedPassword, []byte(password)); err != nil {
		return ErrInvalidPassword
	}

	return nil
}

// GenerateRandomPassword генерирует случайный пароль заданной длины
func GenerateRandomPassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}

	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return hex.EncodeToString(bytes)[:length], nil
}

// InitializeDefaultPassword устанавливает случайный пароль, если пароль
// еще не задан, и возвращает его для показа оператору
func (pm *PasswordManager) InitializeDefaultPassword() (string, error) {
	if pm.IsPasswordSet() {
		return "", nil
	}

	password, err := GenerateRandomPassword(12)
	if err != nil {
		return "", fmt.Errorf("ошибка генерации пароля: %w", err)
	}

	if err := pm.SetPassword(password); err != nil {
		return "", err
	}

	return password, nil
}
