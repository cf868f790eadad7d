// Пакет auth — аутентификация через Slack OAuth v2 и сессии в cookie.
// Сессия шифруется AES-256-GCM и целиком хранится в cookie.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Имя cookie для зашифрованной сессии.
const SessionCookieName = "groundplane_session"

// SessionLifetime — время жизни сессии. Столько же живут снимки кэша сессии.
const SessionLifetime = 24 * time.Hour

// SessionData — данные сессии, хранящиеся в зашифрованном cookie.
type SessionData struct {
	// SessionID — случайный идентификатор, ключ сессионного кэша.
	SessionID string `json:"sid"`
	// UserID — Slack user ID.
	UserID string `json:"user_id"`
	// UserName — отображаемое имя из users.info.
	UserName string `json:"user_name"`
	// AccessToken — токен Slack OAuth.
	AccessToken string `json:"access_token"`
	// CacheEnabled — пользователь включил кэш списков.
	CacheEnabled bool `json:"cache_enabled"`
	// ExpiresAt — время истечения сессии (Unix timestamp).
	ExpiresAt int64 `json:"expires_at"`
}

// NewSessionData создаёт сессию для пользователя с новым SessionID.
func NewSessionData(userID, userName, accessToken string) *SessionData {
	return &SessionData{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		UserName:    userName,
		AccessToken: accessToken,
		ExpiresAt:   time.Now().Add(SessionLifetime).Unix(),
	}
}

// IsExpired проверяет, истекла ли сессия.
func (s *SessionData) IsExpired() bool {
	return time.Now().Unix() >= s.ExpiresAt
}

// SessionManager шифрует/дешифрует SessionData в HTTP cookies через AES-256-GCM.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
}

// NewSessionManager создаёт новый менеджер сессий.
// key — 32-байтовый ключ в base64 или произвольная строка (хешируется SHA-256).
// Если key пустой — генерируется случайный ключ (сессии не переживают рестарт).
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{gcm: gcm, secure: secure}, nil
}

// Encrypt шифрует SessionData и возвращает base64-строку.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce в начале ciphertext
	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку обратно в SessionData.
func (sm *SessionManager) Decrypt(encrypted string) (*SessionData, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	return &data, nil
}

// SetSessionCookie устанавливает зашифрованный session cookie в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   int(SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSessionFromRequest извлекает и дешифрует SessionData из cookie запроса.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie удаляет session cookie (logout).
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Secure сообщает, выставляется ли флаг Secure для cookie.
func (sm *SessionManager) Secure() bool {
	return sm.secure
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}
