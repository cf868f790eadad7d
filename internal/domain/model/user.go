package model

import (
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// User — пользователь. Хранится в таблице Users.
// IsAdmin — checkbox-поле "Is Admin", единственное представление флага.
type User struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFromRecord преобразует запись Airtable в User.
func UserFromRecord(rec *airtable.Record) *User {
	f := rec.Fields
	return &User{
		ID:        rec.ID,
		UserID:    stringField(f, FieldUserID),
		UserName:  stringField(f, FieldUserName),
		IsAdmin:   boolField(f, FieldIsAdmin),
		CreatedAt: createdAt(rec),
	}
}

// UsersFromRecords преобразует список записей.
func UsersFromRecords(recs []airtable.Record) []*User {
	out := make([]*User, 0, len(recs))
	for i := range recs {
		out = append(out, UserFromRecord(&recs[i]))
	}
	return out
}

// Fields возвращает поля для создания записи. Флаг администратора
// не передаётся: новый пользователь администратором не становится.
func (u *User) Fields() map[string]any {
	return map[string]any{
		FieldUserID:    u.UserID,
		FieldUserName:  u.UserName,
		FieldCreatedAt: FormatTime(u.CreatedAt),
	}
}
