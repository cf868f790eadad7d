package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/cache"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

func newProjectService(store *fakeStore, cacheStore cache.Store) *ProjectService {
	svc := NewProjectService(store, cacheStore, testLogger())
	svc.now = stepClock()
	return svc
}

func TestProjectService_CacheOptIn(t *testing.T) {
	store := newFakeStore()
	mem := cache.NewMemoryStore(10, time.Hour)
	svc := newProjectService(store, mem)
	ctx := context.Background()

	actor := alice
	actor.CacheEnabled = true

	store.seed(airtable.KindProjects, map[string]any{
		model.FieldProjectName: "первый",
		model.FieldUserID:      "U1",
		model.FieldCreatedAt:   "2026-03-01T10:00:00Z",
	})

	// Промах: запрос к хранилищу и заполнение кэша
	projects, err := svc.List(ctx, actor)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 1 || store.calls(airtable.KindProjects) != 1 {
		t.Fatalf("len = %d, calls = %d, ожидается 1/1", len(projects), store.calls(airtable.KindProjects))
	}
	if _, err := mem.ReadListing(ctx, actor.SessionID, airtable.KindProjects); err != nil {
		t.Fatalf("снимок должен появиться в кэше: %v", err)
	}

	// Попадание: хранилище не вызывается
	if _, err := svc.List(ctx, actor); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.calls(airtable.KindProjects) != 1 {
		t.Errorf("calls = %d, ожидается 1 (ответ из кэша)", store.calls(airtable.KindProjects))
	}

	// Запись сбрасывает снимок
	if _, err := svc.Create(ctx, actor, ProjectInput{Name: "второй"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := mem.ReadListing(ctx, actor.SessionID, airtable.KindProjects); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("после Create ожидается ErrMiss, получено %v", err)
	}

	projects, err = svc.List(ctx, actor)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.calls(airtable.KindProjects) != 2 {
		t.Errorf("calls = %d, ожидается 2", store.calls(airtable.KindProjects))
	}
	if len(projects) != 2 || projects[0].Name != "второй" {
		t.Errorf("новый проект должен быть первым: %+v", projects)
	}
}

func TestProjectService_CacheDisabled(t *testing.T) {
	store := newFakeStore()
	mem := cache.NewMemoryStore(10, time.Hour)
	svc := newProjectService(store, mem)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.List(ctx, alice); err != nil {
			t.Fatalf("List: %v", err)
		}
	}
	if store.calls(airtable.KindProjects) != 3 {
		t.Errorf("calls = %d, ожидается 3 (кэш выключен)", store.calls(airtable.KindProjects))
	}
	if mem.Len() != 0 {
		t.Errorf("Len = %d, при выключенном кэше ничего не сохраняется", mem.Len())
	}

	// Снимок, оставшийся с момента, когда кэш был включён, всё равно сбрасывается
	_ = mem.WriteListing(ctx, alice.SessionID, &cache.Listing{Kind: airtable.KindProjects})
	if _, err := svc.Create(ctx, alice, ProjectInput{Name: "новый"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := mem.ReadListing(ctx, alice.SessionID, airtable.KindProjects); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("снимок должен быть сброшен: %v", err)
	}
}

func TestProjectService_ListDoesNotCacheSnapshotOlderThanWrite(t *testing.T) {
	store := newFakeStore()
	mem := cache.NewMemoryStore(10, time.Hour)
	svc := newProjectService(store, mem)
	ctx := context.Background()

	actor := alice
	actor.CacheEnabled = true

	store.seed(airtable.KindProjects, map[string]any{
		model.FieldProjectName: "первый",
		model.FieldUserID:      "U1",
		model.FieldCreatedAt:   "2026-03-01T10:00:00Z",
	})

	// Create завершается между выборкой List и записью снимка в кэш.
	store.afterList = func() {
		if _, err := svc.Create(ctx, actor, ProjectInput{Name: "второй"}); err != nil {
			t.Errorf("Create: %v", err)
		}
	}

	projects, err := svc.List(ctx, actor)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("len = %d, ожидается 1 (выборка до Create)", len(projects))
	}
	if _, err := mem.ReadListing(ctx, actor.SessionID, airtable.KindProjects); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("снимок без нового проекта попал в кэш: %v", err)
	}

	projects, err = svc.List(ctx, actor)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("len = %d, ожидается 2", len(projects))
	}
	if _, err := mem.ReadListing(ctx, actor.SessionID, airtable.KindProjects); err != nil {
		t.Errorf("актуальный снимок должен быть в кэше: %v", err)
	}
}

func TestProjectService_CacheIsPerSession(t *testing.T) {
	store := newFakeStore()
	mem := cache.NewMemoryStore(10, time.Hour)
	svc := newProjectService(store, mem)
	ctx := context.Background()

	a := alice
	a.CacheEnabled = true
	b := bob
	b.CacheEnabled = true

	store.seed(airtable.KindProjects, map[string]any{model.FieldProjectName: "alice", model.FieldUserID: "U1"})
	store.seed(airtable.KindProjects, map[string]any{model.FieldProjectName: "bob", model.FieldUserID: "U2"})

	pa, _ := svc.List(ctx, a)
	pb, _ := svc.List(ctx, b)
	if len(pa) != 1 || pa[0].Name != "alice" || len(pb) != 1 || pb[0].Name != "bob" {
		t.Errorf("снимки сессий не должны смешиваться: %+v / %+v", pa, pb)
	}
}

func TestProjectService_CRUDAndOwnership(t *testing.T) {
	store := newFakeStore()
	svc := newProjectService(store, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice, ProjectInput{Name: "   "}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое имя: %v, ожидается ErrValidation", err)
	}

	p, err := svc.Create(ctx, alice, ProjectInput{Name: " groundplane ", Tag: "go", Description: "сервис"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "groundplane" || p.UserID != "U1" || p.UserName != "Alice" {
		t.Errorf("проект = %+v", p)
	}

	if _, err := svc.Get(ctx, bob, p.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Get чужого = %v, ожидается ErrUnauthorized", err)
	}
	if err := svc.Delete(ctx, bob, p.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Delete чужого = %v, ожидается ErrUnauthorized", err)
	}

	tag := "golang"
	updated, err := svc.Update(ctx, alice, p.ID, &model.ProjectPatch{Tag: &tag})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Tag != "golang" || updated.Name != "groundplane" || updated.Description != "сервис" {
		t.Errorf("частичное обновление = %+v", updated)
	}

	empty := " "
	if _, err := svc.Update(ctx, alice, p.ID, &model.ProjectPatch{Name: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое имя в патче: %v, ожидается ErrValidation", err)
	}

	if err := svc.Delete(ctx, alice, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, alice, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get после Delete = %v, ожидается ErrNotFound", err)
	}
}

func TestProjectService_Logs(t *testing.T) {
	store := newFakeStore()
	svc := newProjectService(store, nil)
	ctx := context.Background()

	p, _ := svc.Create(ctx, alice, ProjectInput{Name: "O'Brien app"})

	store.seed(airtable.KindLogs, map[string]any{
		model.FieldUserID: "U1", model.FieldProjectName: "O'Brien app",
		model.FieldCreatedAt: "2026-03-01T10:00:00Z",
	})
	store.seed(airtable.KindLogs, map[string]any{
		model.FieldUserID: "U1", model.FieldProjectName: "O'Brien app",
		model.FieldCreatedAt: "2026-03-02T10:00:00Z",
	})
	store.seed(airtable.KindLogs, map[string]any{
		model.FieldUserID: "U1", model.FieldProjectName: "другой",
	})
	store.seed(airtable.KindLogs, map[string]any{
		model.FieldUserID: "U2", model.FieldProjectName: "O'Brien app",
	})

	project, logs, err := svc.Logs(ctx, alice, p.ID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if project.ID != p.ID {
		t.Errorf("project.ID = %q", project.ID)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d, ожидается 2", len(logs))
	}
	if !logs[0].CreatedAt.After(logs[1].CreatedAt) {
		t.Error("логи проекта должны идти от новых к старым")
	}

	if _, _, err := svc.Logs(ctx, bob, p.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Logs чужого проекта = %v, ожидается ErrUnauthorized", err)
	}
}
