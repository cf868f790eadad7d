package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// backends возвращает оба backend'а кэша для общих тестов.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(10, time.Hour),
		"redis":  NewRedisStore(rdb, time.Hour),
	}
}

func sampleListing(kind airtable.Kind) *Listing {
	return &Listing{
		Kind: kind,
		Records: []airtable.Record{
			{ID: "rec2", Fields: map[string]any{"Project Name": "beta"}},
			{ID: "rec1", Fields: map[string]any{"Project Name": "alpha"}},
		},
		CapturedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStore_MissOnEmpty(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.ReadListing(context.Background(), "s1", airtable.KindProjects)
			if !errors.Is(err, ErrMiss) {
				t.Errorf("ReadListing = %v, ожидается ErrMiss", err)
			}
		})
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleListing(airtable.KindProjects)

			if err := store.WriteListing(ctx, "s1", want); err != nil {
				t.Fatalf("WriteListing: %v", err)
			}

			got, err := store.ReadListing(ctx, "s1", airtable.KindProjects)
			if err != nil {
				t.Fatalf("ReadListing: %v", err)
			}
			if len(got.Records) != 2 {
				t.Fatalf("len = %d, ожидается 2", len(got.Records))
			}
			if got.Records[0].ID != "rec2" || got.Records[1].ID != "rec1" {
				t.Errorf("порядок записей нарушен: %s, %s", got.Records[0].ID, got.Records[1].ID)
			}
			if got.Records[1].Fields["Project Name"] != "alpha" {
				t.Errorf("Project Name = %v", got.Records[1].Fields["Project Name"])
			}
			if !got.CapturedAt.Equal(want.CapturedAt) {
				t.Errorf("CapturedAt = %v, ожидается %v", got.CapturedAt, want.CapturedAt)
			}
		})
	}
}

func TestStore_OverwriteUnconditional(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindLogs))

			second := &Listing{Kind: airtable.KindLogs, Records: []airtable.Record{{ID: "rec9"}}}
			if err := store.WriteListing(ctx, "s1", second); err != nil {
				t.Fatalf("WriteListing: %v", err)
			}

			got, err := store.ReadListing(ctx, "s1", airtable.KindLogs)
			if err != nil {
				t.Fatalf("ReadListing: %v", err)
			}
			if len(got.Records) != 1 || got.Records[0].ID != "rec9" {
				t.Errorf("Records = %+v, ожидается только rec9", got.Records)
			}
		})
	}
}

func TestStore_InvalidateIdempotent(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindLogs))

			for i := 0; i < 3; i++ {
				if err := store.Invalidate(ctx, "s1", airtable.KindLogs); err != nil {
					t.Fatalf("Invalidate #%d: %v", i, err)
				}
				if _, err := store.ReadListing(ctx, "s1", airtable.KindLogs); !errors.Is(err, ErrMiss) {
					t.Errorf("после Invalidate #%d: %v, ожидается ErrMiss", i, err)
				}
			}
		})
	}
}

func TestStore_WriteListingAtRejectsAfterInvalidate(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			gen, err := store.Generation(ctx, "s1", airtable.KindLogs)
			if err != nil {
				t.Fatalf("Generation: %v", err)
			}

			// Запись создана между выборкой списка и записью снимка.
			if err := store.Invalidate(ctx, "s1", airtable.KindLogs); err != nil {
				t.Fatalf("Invalidate: %v", err)
			}

			err = store.WriteListingAt(ctx, "s1", sampleListing(airtable.KindLogs), gen)
			if !errors.Is(err, ErrStale) {
				t.Fatalf("WriteListingAt = %v, ожидается ErrStale", err)
			}
			if _, err := store.ReadListing(ctx, "s1", airtable.KindLogs); !errors.Is(err, ErrMiss) {
				t.Errorf("устаревший снимок записан: %v", err)
			}

			fresh, err := store.Generation(ctx, "s1", airtable.KindLogs)
			if err != nil {
				t.Fatalf("Generation: %v", err)
			}
			if fresh == gen {
				t.Errorf("поколение не изменилось после Invalidate: %d", fresh)
			}
			if err := store.WriteListingAt(ctx, "s1", sampleListing(airtable.KindLogs), fresh); err != nil {
				t.Fatalf("WriteListingAt с текущим поколением: %v", err)
			}
			if _, err := store.ReadListing(ctx, "s1", airtable.KindLogs); err != nil {
				t.Errorf("ReadListing: %v", err)
			}
		})
	}
}

func TestStore_GenerationPerSessionAndKind(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Invalidate(ctx, "s1", airtable.KindLogs)

			for _, key := range []struct {
				session string
				kind    airtable.Kind
			}{{"s1", airtable.KindProjects}, {"s2", airtable.KindLogs}} {
				gen, err := store.Generation(ctx, key.session, key.kind)
				if err != nil {
					t.Fatalf("Generation: %v", err)
				}
				if gen != 0 {
					t.Errorf("Generation(%s, %s) = %d, ожидается 0", key.session, key.kind, gen)
				}
			}
		})
	}
}

func TestStore_IsolationBySessionAndKind(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindProjects))
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindLogs))

			if _, err := store.ReadListing(ctx, "s2", airtable.KindProjects); !errors.Is(err, ErrMiss) {
				t.Errorf("чужая сессия видит снимок: %v", err)
			}

			store.Invalidate(ctx, "s1", airtable.KindLogs)
			if _, err := store.ReadListing(ctx, "s1", airtable.KindProjects); err != nil {
				t.Errorf("Invalidate(logs) не должен трогать projects: %v", err)
			}
		})
	}
}

func TestStore_Purge(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindProjects))
			store.WriteListing(ctx, "s1", sampleListing(airtable.KindLogs))
			store.WriteListing(ctx, "s2", sampleListing(airtable.KindLogs))

			if err := store.Purge(ctx, "s1"); err != nil {
				t.Fatalf("Purge: %v", err)
			}

			for _, kind := range CachedKinds {
				if _, err := store.ReadListing(ctx, "s1", kind); !errors.Is(err, ErrMiss) {
					t.Errorf("%s после Purge: %v", kind, err)
				}
			}
			if _, err := store.ReadListing(ctx, "s2", airtable.KindLogs); err != nil {
				t.Errorf("Purge не должен трогать другие сессии: %v", err)
			}
		})
	}
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	l := sampleListing(airtable.KindProjects)
	store.WriteListing(ctx, "s1", l)
	l.Records[0].ID = "mutated"
	l.Records[1].Fields["Project Name"] = "mutated"

	got, _ := store.ReadListing(ctx, "s1", airtable.KindProjects)
	if got.Records[0].ID != "rec2" || got.Records[1].Fields["Project Name"] != "alpha" {
		t.Error("изменение исходного снимка повлияло на кэш")
	}

	got.Records[0].ID = "mutated-again"
	again, _ := store.ReadListing(ctx, "s1", airtable.KindProjects)
	if again.Records[0].ID != "rec2" {
		t.Error("изменение прочитанного снимка повлияло на кэш")
	}
}

func TestMemoryStore_BoundedBySessions(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2", "s3"} {
		for _, kind := range CachedKinds {
			store.WriteListing(ctx, s, sampleListing(kind))
		}
	}

	if store.Len() != 4 {
		t.Errorf("Len = %d, ожидается 4", store.Len())
	}
	if _, err := store.ReadListing(ctx, "s1", airtable.KindLogs); !errors.Is(err, ErrMiss) {
		t.Errorf("самая старая сессия должна быть вытеснена: %v", err)
	}
}

func TestRedisStore_TTLAndKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb, 30*time.Minute)
	if err := store.WriteListing(context.Background(), "abc", sampleListing(airtable.KindLogs)); err != nil {
		t.Fatalf("WriteListing: %v", err)
	}

	key := "groundplane:cache:abc:logs"
	if !mr.Exists(key) {
		t.Fatalf("ключ %s не найден", key)
	}
	if ttl := mr.TTL(key); ttl != 30*time.Minute {
		t.Errorf("TTL = %v, ожидается 30m", ttl)
	}

	mr.FastForward(31 * time.Minute)
	if _, err := store.ReadListing(context.Background(), "abc", airtable.KindLogs); !errors.Is(err, ErrMiss) {
		t.Errorf("после истечения сессии: %v, ожидается ErrMiss", err)
	}
}

func TestRedisStore_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	key := "groundplane:cache:s1:projects"

	testCases := []struct {
		name   string
		mocker func()
		call   func() error
	}{
		{
			name:   "read error",
			mocker: func() { mock.ExpectGet(key).SetErr(errors.New("redis down")) },
			call: func() error {
				_, err := store.ReadListing(ctx, "s1", airtable.KindProjects)
				return err
			},
		},
		{
			name:   "corrupt value",
			mocker: func() { mock.ExpectGet(key).SetVal("{not json") },
			call: func() error {
				_, err := store.ReadListing(ctx, "s1", airtable.KindProjects)
				return err
			},
		},
		{
			name: "write error",
			mocker: func() {
				data, _ := json.Marshal(sampleListing(airtable.KindProjects))
				mock.ExpectSet(key, data, time.Hour).SetErr(errors.New("redis down"))
			},
			call: func() error {
				return store.WriteListing(ctx, "s1", sampleListing(airtable.KindProjects))
			},
		},
		{
			name:   "invalidate error",
			mocker: func() { mock.ExpectIncr(key + ":gen").SetErr(errors.New("redis down")) },
			call: func() error {
				return store.Invalidate(ctx, "s1", airtable.KindProjects)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.mocker()
			err := tc.call()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if errors.Is(err, ErrMiss) {
				t.Error("ошибка Redis не должна выдаваться за промах")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("ожидания redismock: %v", err)
			}
		})
	}
}

func TestRedisStore_PurgeDeletesAllKinds(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour)

	mock.ExpectDel("groundplane:cache:s1:logs", "groundplane:cache:s1:projects").SetVal(2)

	if err := store.Purge(context.Background(), "s1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("ожидания redismock: %v", err)
	}
}
