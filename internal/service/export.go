// export.go — выгрузка логов пользователя в CSV.
package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// csvHeader — колонки CSV-выгрузки, совпадают с полями Airtable.
var csvHeader = []string{
	model.FieldCreatedAt,
	model.FieldProjectName,
	model.FieldProjectTag,
	model.FieldDescription,
	model.FieldWhatIDid,
	model.FieldCouldBetter,
	model.FieldCanImprove,
	model.FieldNextSteps,
	model.FieldTimeSpent,
	model.FieldMediaURL,
}

// WriteLogsCSV записывает логи в w в формате CSV с заголовком.
func WriteLogsCSV(w io.Writer, logs []*model.Log) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("запись заголовка CSV: %w", err)
	}

	for _, l := range logs {
		row := []string{
			model.FormatTime(l.CreatedAt),
			l.ProjectName,
			l.ProjectTag,
			l.Description,
			l.WhatIDid,
			l.CouldBetter,
			l.CanImprove,
			l.NextSteps,
			strconv.Itoa(l.TimeSpent),
			l.MediaURL,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("запись строки CSV: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
