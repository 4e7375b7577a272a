// Package storetest provides an in-memory store.Client whose latency, cost and
// failures are scripted, so engine behavior can be checked deterministically.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daryltucker/cache-bench/internal/store"
)

// Op names one kind of store call.
type Op string

const (
	OpResolve         Op = "resolve"
	OpCreateDatabase  Op = "create-database"
	OpCreateContainer Op = "create-container"
	OpCreate          Op = "create"
	OpUpsert          Op = "upsert"
	OpRead            Op = "read"
	OpQueryPage       Op = "query-page"
	OpDeleteDatabase  Op = "delete-database"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Memory is a store.Client holding databases in process.
type Memory struct {
	mu sync.Mutex

	// Clock, when set, is advanced by the next entry of Latencies[op] on every call.
	Clock     *Clock
	Latencies map[Op][]time.Duration
	// Costs are consumed per call; DefaultCost is used once a queue is empty.
	Costs       map[Op][]float64
	DefaultCost float64
	// FailOn makes the n-th call (1-based) of an op return Err.
	FailOn map[Op]int
	Err    error
	// QueryErrors fails every query whose text matches a key.
	QueryErrors map[string]error
	// Executions scripts the page sequence of successive executions of a
	// query text. The last execution repeats once the queue is drained.
	Executions map[string][][]store.Page
	// PageSize bounds default query pages.
	PageSize int

	calls     map[Op]int
	databases map[string]map[string]*container
}

// NewMemory returns an empty store with cost 1 per call.
func NewMemory() *Memory {
	return &Memory{
		Latencies:   map[Op][]time.Duration{},
		Costs:       map[Op][]float64{},
		DefaultCost: 1,
		FailOn:      map[Op]int{},
		Err:         fmt.Errorf("injected failure"),
		QueryErrors: map[string]error{},
		Executions:  map[string][][]store.Page{},
		PageSize:    100,
		calls:       map[Op]int{},
		databases:   map[string]map[string]*container{},
	}
}

// Calls returns how many times op has been invoked.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ItemCount returns the number of documents in a container, -1 if it is missing.
func (m *Memory) ItemCount(databaseID, containerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.databases[databaseID][containerID]
	if !ok {
		return -1
	}
	return len(c.order)
}

// HasDatabase reports whether databaseID exists.
func (m *Memory) HasDatabase(databaseID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.databases[databaseID]
	return ok
}

// Seed creates the container if needed and stores the given documents.
func (m *Memory) Seed(databaseID, containerID string, docs ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.ensure(databaseID, containerID)
	for _, d := range docs {
		if _, err := c.put(d, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) ensure(databaseID, containerID string) *container {
	db, ok := m.databases[databaseID]
	if !ok {
		db = map[string]*container{}
		m.databases[databaseID] = db
	}
	c, ok := db[containerID]
	if !ok {
		c = &container{mem: m, id: containerID, docs: map[string][]byte{}}
		db[containerID] = c
	}
	return c
}

// call records op, applies its latency and returns its cost or injected error.
func (m *Memory) call(op Op) (float64, error) {
	m.mu.Lock()
	m.calls[op]++
	n := m.calls[op]

	var latency time.Duration
	if q := m.Latencies[op]; len(q) > 0 {
		latency, m.Latencies[op] = q[0], q[1:]
	}
	cost := m.DefaultCost
	if q := m.Costs[op]; len(q) > 0 {
		cost, m.Costs[op] = q[0], q[1:]
	}
	fail := m.FailOn[op] == n
	err := m.Err
	clock := m.Clock
	m.mu.Unlock()

	if clock != nil {
		clock.Advance(latency)
	}
	if fail {
		return 0, err
	}
	return cost, nil
}

func (m *Memory) ResolveContainer(_ context.Context, databaseID, containerID string) (store.Container, error) {
	if _, err := m.call(OpResolve); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.databases[databaseID][containerID]
	if !ok {
		return nil, fmt.Errorf("container %s/%s: %w", databaseID, containerID, store.ErrNotFound)
	}
	return c, nil
}

func (m *Memory) CreateDatabaseIfMissing(_ context.Context, databaseID string) error {
	if _, err := m.call(OpCreateDatabase); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.databases[databaseID]; !ok {
		m.databases[databaseID] = map[string]*container{}
	}
	return nil
}

func (m *Memory) CreateContainerIfMissing(_ context.Context, databaseID, containerID, _ string, _ int32) (store.Container, error) {
	if _, err := m.call(OpCreateContainer); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.databases[databaseID]; !ok {
		return nil, fmt.Errorf("database %s: %w", databaseID, store.ErrNotFound)
	}
	return m.ensure(databaseID, containerID), nil
}

func (m *Memory) DeleteDatabase(_ context.Context, databaseID string) error {
	if _, err := m.call(OpDeleteDatabase); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.databases[databaseID]; !ok {
		return fmt.Errorf("database %s: %w", databaseID, store.ErrNotFound)
	}
	delete(m.databases, databaseID)
	return nil
}

type container struct {
	mem   *Memory
	id    string
	docs  map[string][]byte
	order []string
}

func (c *container) ID() string { return c.id }

// put stores a document; callers hold mem.mu.
func (c *container) put(item any, upsert bool) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.ID == "" {
		return "", fmt.Errorf("document has no id")
	}
	if _, exists := c.docs[head.ID]; exists {
		if !upsert {
			return "", fmt.Errorf("item %s: %w", head.ID, store.ErrConflict)
		}
	} else {
		c.order = append(c.order, head.ID)
	}
	c.docs[head.ID] = data
	return head.ID, nil
}

func (c *container) CreateItem(_ context.Context, item any, _ string) (float64, error) {
	cost, err := c.mem.call(OpCreate)
	if err != nil {
		return 0, err
	}
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if _, err := c.put(item, false); err != nil {
		return 0, err
	}
	return cost, nil
}

func (c *container) UpsertItem(_ context.Context, item any, _ string) (float64, error) {
	cost, err := c.mem.call(OpUpsert)
	if err != nil {
		return 0, err
	}
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if _, err := c.put(item, true); err != nil {
		return 0, err
	}
	return cost, nil
}

func (c *container) ReadItem(_ context.Context, id, _ string, _ store.Consistency, out any) (float64, error) {
	cost, err := c.mem.call(OpRead)
	if err != nil {
		return 0, err
	}
	c.mem.mu.Lock()
	data, ok := c.docs[id]
	c.mem.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return cost, err
		}
	}
	return cost, nil
}

var topPattern = regexp.MustCompile(`(?i)\bTOP\s+(\d+)`)

// Query serves scripted pages when present. Otherwise "VALUE c.id" queries
// return ids in insertion order and every other query returns whole documents,
// honoring a TOP clause.
func (c *container) Query(_ context.Context, queryText, _ string, _ store.Consistency) store.Pager {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()

	if err, ok := c.mem.QueryErrors[queryText]; ok {
		return &pager{mem: c.mem, err: err}
	}
	if runs := c.mem.Executions[queryText]; len(runs) > 0 {
		pages := runs[0]
		if len(runs) > 1 {
			c.mem.Executions[queryText] = runs[1:]
		}
		return &pager{mem: c.mem, pages: append([]store.Page(nil), pages...)}
	}

	limit := len(c.order)
	if m := topPattern.FindStringSubmatch(queryText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n < limit {
			limit = n
		}
	}
	idsOnly := strings.Contains(strings.ToUpper(queryText), "VALUE C.ID")

	var items [][]byte
	for _, id := range c.order[:limit] {
		if idsOnly {
			raw, _ := json.Marshal(id)
			items = append(items, raw)
		} else {
			items = append(items, c.docs[id])
		}
	}

	size := c.mem.PageSize
	if size <= 0 {
		size = 100
	}
	var pages []store.Page
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, store.Page{Items: items[start:end]})
	}
	if len(pages) == 0 {
		pages = []store.Page{{}}
	}
	return &pager{mem: c.mem, pages: pages, defaultCost: true}
}

type pager struct {
	mem         *Memory
	pages       []store.Page
	err         error
	defaultCost bool
	started     bool
}

func (p *pager) More() bool {
	if p.err != nil {
		return !p.started
	}
	return len(p.pages) > 0
}

func (p *pager) NextPage(context.Context) (store.Page, error) {
	p.started = true
	cost, err := p.mem.call(OpQueryPage)
	if err != nil {
		return store.Page{}, err
	}
	if p.err != nil {
		return store.Page{}, p.err
	}
	if len(p.pages) == 0 {
		return store.Page{}, fmt.Errorf("no more pages")
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	if p.defaultCost {
		page.Cost = cost
	}
	return page, nil
}
