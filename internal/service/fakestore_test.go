package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eqTerm — условие {Field} = 'value' в формуле.
var eqTerm = regexp.MustCompile(`\{([^}]*)\} = '((?:[^'\\]|\\.)*)'`)

// fakeStore — in-memory RecordStore. Формулы вычисляются как конъюнкция
// всех условий {Field} = 'value'.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	records   map[airtable.Kind]map[string]map[string]any
	listCalls map[airtable.Kind]int
	lastOpts  map[airtable.Kind]airtable.ListOptions
	failList  error
	failWrite error
	// afterList вызывается один раз после выборки List, до возврата результата.
	afterList func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   make(map[airtable.Kind]map[string]map[string]any),
		listCalls: make(map[airtable.Kind]int),
		lastOpts:  make(map[airtable.Kind]airtable.ListOptions),
	}
}

// seed добавляет запись напрямую, минуя счётчики.
func (f *fakeStore) seed(kind airtable.Kind, fields map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(kind, fields)
}

func (f *fakeStore) insert(kind airtable.Kind, fields map[string]any) string {
	f.seq++
	id := fmt.Sprintf("rec%03d", f.seq)
	if f.records[kind] == nil {
		f.records[kind] = make(map[string]map[string]any)
	}
	f.records[kind][id] = maps.Clone(fields)
	return id
}

func (f *fakeStore) calls(kind airtable.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[kind]
}

func (f *fakeStore) exists(kind airtable.Kind, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[kind][id]
	return ok
}

func (f *fakeStore) Create(_ context.Context, kind airtable.Kind, fields map[string]any) (*airtable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	id := f.insert(kind, fields)
	return &airtable.Record{ID: id, Fields: maps.Clone(fields)}, nil
}

func (f *fakeStore) Get(_ context.Context, kind airtable.Kind, id string) (*airtable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.records[kind][id]
	if !ok {
		return nil, airtable.ErrNotFound
	}
	return &airtable.Record{ID: id, Fields: maps.Clone(fields)}, nil
}

func (f *fakeStore) Update(_ context.Context, kind airtable.Kind, id string, fields map[string]any) (*airtable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	existing, ok := f.records[kind][id]
	if !ok {
		return nil, airtable.ErrNotFound
	}
	for k, v := range fields {
		if v != nil {
			existing[k] = v
		}
	}
	return &airtable.Record{ID: id, Fields: maps.Clone(existing)}, nil
}

func (f *fakeStore) Delete(_ context.Context, kind airtable.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	if _, ok := f.records[kind][id]; !ok {
		return airtable.ErrNotFound
	}
	delete(f.records[kind], id)
	return nil
}

func (f *fakeStore) List(_ context.Context, kind airtable.Kind, opts airtable.ListOptions) ([]airtable.Record, error) {
	f.mu.Lock()
	hook := f.afterList
	f.afterList = nil
	f.mu.Unlock()
	if hook != nil {
		defer hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[kind]++
	f.lastOpts[kind] = opts
	if f.failList != nil {
		return nil, f.failList
	}

	conds := map[string]string{}
	for _, m := range eqTerm.FindAllStringSubmatch(opts.Formula, -1) {
		conds[m[1]] = unescapeFormula(m[2])
	}

	var out []airtable.Record
	for id, fields := range f.records[kind] {
		match := true
		for field, want := range conds {
			if got, _ := fields[field].(string); got != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, airtable.Record{ID: id, Fields: maps.Clone(fields)})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if opts.Sort != nil && opts.Sort.Field == model.FieldCreatedAt {
			ai, _ := out[i].Fields[model.FieldCreatedAt].(string)
			aj, _ := out[j].Fields[model.FieldCreatedAt].(string)
			if ai != aj {
				if opts.Sort.Direction == airtable.Desc {
					return ai > aj
				}
				return ai < aj
			}
		}
		return out[i].ID < out[j].ID
	})

	if opts.MaxRecords > 0 && len(out) > opts.MaxRecords {
		out = out[:opts.MaxRecords]
	}
	return out, nil
}

func unescapeFormula(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\n`, "\n").Replace(s)
}

var errUpstreamDown = errors.New("airtable: статус 503")
