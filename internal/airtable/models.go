package airtable

import "time"

// Kind — логическая таблица Airtable.
type Kind string

const (
	KindUsers    Kind = "users"
	KindProjects Kind = "projects"
	KindLogs     Kind = "logs"
)

// Record — строка таблицы Airtable.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Direction — направление сортировки.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort — сортировка по одному полю.
type Sort struct {
	Field     string
	Direction Direction
}

// ListOptions — параметры выборки.
type ListOptions struct {
	// Formula — filterByFormula (см. Eq, And)
	Formula string
	// Sort — сортировка, nil — порядок Airtable
	Sort *Sort
	// MaxRecords — ограничение общего числа записей, 0 — без ограничения
	MaxRecords int
}

// fieldsRequest — тело POST/PATCH.
type fieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

// listResponse — страница ответа list.
type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// deleteResponse — ответ DELETE.
type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
