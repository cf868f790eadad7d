package model

import (
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// Project — отслеживаемый проект. Хранится в таблице Projects.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Tag         string    `json:"tag"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectFromRecord преобразует запись Airtable в Project.
func ProjectFromRecord(rec *airtable.Record) *Project {
	f := rec.Fields
	return &Project{
		ID:          rec.ID,
		Name:        stringField(f, FieldProjectName),
		Tag:         stringField(f, FieldProjectTag),
		Description: stringField(f, FieldDescription),
		UserID:      stringField(f, FieldUserID),
		UserName:    stringField(f, FieldUserName),
		CreatedAt:   createdAt(rec),
	}
}

// ProjectsFromRecords преобразует список записей.
func ProjectsFromRecords(recs []airtable.Record) []*Project {
	out := make([]*Project, 0, len(recs))
	for i := range recs {
		out = append(out, ProjectFromRecord(&recs[i]))
	}
	return out
}

// Fields возвращает поля Airtable для создания записи.
func (p *Project) Fields() map[string]any {
	return map[string]any{
		FieldProjectName: p.Name,
		FieldProjectTag:  p.Tag,
		FieldDescription: p.Description,
		FieldUserID:      p.UserID,
		FieldUserName:    p.UserName,
		FieldCreatedAt:   FormatTime(p.CreatedAt),
	}
}

// ProjectPatch — частичное обновление проекта. nil-поля не меняются.
type ProjectPatch struct {
	Name        *string `json:"name"`
	Tag         *string `json:"tag"`
	Description *string `json:"description"`
}

// Fields возвращает только заданные поля.
func (p *ProjectPatch) Fields() map[string]any {
	fields := make(map[string]any)
	putString(fields, FieldProjectName, p.Name)
	putString(fields, FieldProjectTag, p.Tag)
	putString(fields, FieldDescription, p.Description)
	return fields
}

// Empty сообщает, что патч ничего не меняет.
func (p *ProjectPatch) Empty() bool {
	return len(p.Fields()) == 0
}
