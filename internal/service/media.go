// media.go — приём медиафайла к логу: проверка расширения, временный файл,
// передача в CDN, удаление временного файла.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AllowedMediaExtensions — допустимые расширения медиафайлов.
var AllowedMediaExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"mp4":  true,
	"mov":  true,
	"avi":  true,
	"webm": true,
}

// Relayer получает постоянный URL CDN для локального файла (cdn.Relay).
type Relayer interface {
	Relay(ctx context.Context, localPath string) (string, error)
}

// MediaService — загрузка медиафайлов в CDN.
type MediaService struct {
	relay  Relayer
	tmpDir string
	now    func() time.Time
	logger *slog.Logger
}

// NewMediaService создаёт сервис. tmpDir — директория временных файлов загрузки.
func NewMediaService(relay Relayer, tmpDir string, logger *slog.Logger) *MediaService {
	return &MediaService{
		relay:  relay,
		tmpDir: tmpDir,
		now:    time.Now,
		logger: logger.With(slog.String("service", "media")),
	}
}

// AllowedFile проверяет расширение имени файла.
func AllowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return AllowedMediaExtensions[ext]
}

// Upload сохраняет r во временный файл {unix}_{имя}, передаёт его в CDN
// и удаляет временный файл при любом исходе.
// Недопустимое расширение — ErrValidation, неудача передачи — ErrUpstream.
func (s *MediaService) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !AllowedFile(filename) {
		return "", validationError("недопустимый тип файла %q", filepath.Ext(filename))
	}

	name := SanitizeFilename(filename)
	tmp, err := os.CreateTemp(s.tmpDir, fmt.Sprintf("%d_*_%s", s.now().Unix(), name))
	if err != nil {
		return "", fmt.Errorf("создание временного файла: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Ошибка удаления временного файла загрузки",
				slog.String("path", tmpPath),
				slog.String("error", err.Error()),
			)
		}
	}()

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("сохранение загрузки: %w", err)
	}

	deployed, err := s.relay.Relay(ctx, tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	s.logger.Info("Медиафайл загружен в CDN",
		slog.String("filename", name),
		slog.Int64("size", size),
		slog.String("url", deployed),
	)
	return deployed, nil
}

// MaxFilenameLen — предел длины очищенного имени файла в байтах.
// Имя входит в имя временного файла вместе с префиксом и должно
// оставаться в пределах NAME_MAX файловой системы.
const MaxFilenameLen = 100

// SanitizeFilename оставляет в имени файла только ASCII-буквы, цифры,
// точку, дефис и подчёркивание. Пробелы заменяются на подчёркивание,
// ведущие точки удаляются. Пустой результат — "upload".
// Имя длиннее MaxFilenameLen укорачивается с сохранением расширения.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "upload"
	}
	if len(out) > MaxFilenameLen {
		ext := filepath.Ext(out)
		if len(ext) >= MaxFilenameLen/2 {
			ext = ""
		}
		out = out[:MaxFilenameLen-len(ext)] + ext
	}
	return out
}
