package model

import (
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// Log — запись журнала разработки.
// Хранится в таблице Logs. Ссылается на проект по имени (строкой),
// на владельца — по User ID.
type Log struct {
	ID string `json:"id"`
	// UserID — Slack ID владельца
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	// ProjectName — имя проекта на момент создания лога
	ProjectName string `json:"project_name"`
	ProjectTag  string `json:"project_tag"`
	Description string `json:"description"`
	WhatIDid    string `json:"what_did"`
	CouldBetter string `json:"could_improve"`
	CanImprove  string `json:"can_improve"`
	NextSteps   string `json:"next_steps"`
	// TimeSpent — затраченное время в минутах
	TimeSpent int       `json:"time_spent"`
	MediaURL  string    `json:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogFromRecord преобразует запись Airtable в Log.
func LogFromRecord(rec *airtable.Record) *Log {
	f := rec.Fields
	return &Log{
		ID:          rec.ID,
		UserID:      stringField(f, FieldUserID),
		UserName:    stringField(f, FieldUserName),
		ProjectName: stringField(f, FieldProjectName),
		ProjectTag:  stringField(f, FieldProjectTag),
		Description: stringField(f, FieldDescription),
		WhatIDid:    stringField(f, FieldWhatIDid),
		CouldBetter: stringField(f, FieldCouldBetter),
		CanImprove:  stringField(f, FieldCanImprove),
		NextSteps:   stringField(f, FieldNextSteps),
		TimeSpent:   intField(f, FieldTimeSpent),
		MediaURL:    stringField(f, FieldMediaURL),
		CreatedAt:   createdAt(rec),
	}
}

// LogsFromRecords преобразует список записей.
func LogsFromRecords(recs []airtable.Record) []*Log {
	out := make([]*Log, 0, len(recs))
	for i := range recs {
		out = append(out, LogFromRecord(&recs[i]))
	}
	return out
}

// Fields возвращает поля Airtable для создания записи.
// Пустой MediaURL не передаётся.
func (l *Log) Fields() map[string]any {
	fields := map[string]any{
		FieldUserID:      l.UserID,
		FieldUserName:    l.UserName,
		FieldProjectName: l.ProjectName,
		FieldProjectTag:  l.ProjectTag,
		FieldDescription: l.Description,
		FieldWhatIDid:    l.WhatIDid,
		FieldCouldBetter: l.CouldBetter,
		FieldCanImprove:  l.CanImprove,
		FieldNextSteps:   l.NextSteps,
		FieldTimeSpent:   l.TimeSpent,
		FieldCreatedAt:   FormatTime(l.CreatedAt),
	}
	if l.MediaURL != "" {
		fields[FieldMediaURL] = l.MediaURL
	}
	return fields
}

// LogPatch — частичное обновление лога. nil-поля не меняются.
// Владелец и время создания не редактируются.
type LogPatch struct {
	ProjectName *string `json:"project_name"`
	ProjectTag  *string `json:"project_tag"`
	Description *string `json:"description"`
	WhatIDid    *string `json:"what_did"`
	CouldBetter *string `json:"could_improve"`
	CanImprove  *string `json:"can_improve"`
	NextSteps   *string `json:"next_steps"`
	TimeSpent   *int    `json:"time_spent"`
	MediaURL    *string `json:"media_url"`
}

// Fields возвращает только заданные поля.
func (p *LogPatch) Fields() map[string]any {
	fields := make(map[string]any)
	putString(fields, FieldProjectName, p.ProjectName)
	putString(fields, FieldProjectTag, p.ProjectTag)
	putString(fields, FieldDescription, p.Description)
	putString(fields, FieldWhatIDid, p.WhatIDid)
	putString(fields, FieldCouldBetter, p.CouldBetter)
	putString(fields, FieldCanImprove, p.CanImprove)
	putString(fields, FieldNextSteps, p.NextSteps)
	putString(fields, FieldMediaURL, p.MediaURL)
	if p.TimeSpent != nil {
		fields[FieldTimeSpent] = *p.TimeSpent
	}
	return fields
}

// Empty сообщает, что патч ничего не меняет.
func (p *LogPatch) Empty() bool {
	return len(p.Fields()) == 0
}

func putString(fields map[string]any, name string, v *string) {
	if v != nil {
		fields[name] = *v
	}
}
