// Пакет model — доменные модели groundplane и их отображение на поля Airtable.
package model

import (
	"math"
	"strconv"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// Имена полей Airtable.
const (
	FieldUserID      = "User ID"
	FieldUserName    = "User Name"
	FieldIsAdmin     = "Is Admin"
	FieldProjectName = "Project Name"
	FieldProjectTag  = "Project Tag"
	FieldDescription = "Description"
	FieldWhatIDid    = "What I Did"
	FieldCouldBetter = "Could Have Done Better"
	FieldCanImprove  = "What I Can Improve"
	FieldNextSteps   = "Next Steps"
	FieldTimeSpent   = "Time Spent (minutes)"
	FieldMediaURL    = "Media URL"
	FieldCreatedAt   = "Created At"
)

// TimeLayout — формат поля Created At.
const TimeLayout = time.RFC3339

// stringField возвращает строковое значение поля или "".
func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// intField возвращает целое значение поля. Числа из JSON приходят как float64,
// строковые значения разбираются.
func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// boolField возвращает значение checkbox-поля. Пустой checkbox Airtable
// не передаёт вовсе, поэтому отсутствие поля — false.
func boolField(fields map[string]any, name string) bool {
	v, _ := fields[name].(bool)
	return v
}

// createdAt возвращает время создания: поле Created At, иначе createdTime записи.
func createdAt(rec *airtable.Record) time.Time {
	if s := stringField(rec.Fields, FieldCreatedAt); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		// Старые записи без зоны: 2024-05-01T10:00:00.123456
		if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
			return t.UTC()
		}
	}
	return rec.CreatedTime
}

// FormatTime форматирует время для поля Created At.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
