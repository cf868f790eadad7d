// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrUnauthorized — запись принадлежит другому пользователю.
	ErrUnauthorized = errors.New("нет доступа к записи")
	// ErrForbidden — операция доступна только администратору.
	ErrForbidden = errors.New("недостаточно прав: требуется администратор")
	// ErrUpstream — внешний сервис (Airtable, CDN, Slack) недоступен или ответил ошибкой.
	ErrUpstream = errors.New("внешний сервис недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// storeError переводит ошибку RecordStore в ошибку сервисного слоя.
func storeError(op string, err error) error {
	if errors.Is(err, airtable.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// validationError оборачивает сообщение в ErrValidation.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
