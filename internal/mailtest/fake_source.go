// Package mailtest provides an in-memory mail source for tests.
package mailtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/NickCassab/email-buddy/internal/core"
)

// FakeSource is a scriptable core.MailSource
type FakeSource struct {
	mu        sync.Mutex
	order     []string
	items     map[string]*core.InboxItem
	failures  map[string]error
	listErr   error
	fullCalls map[string]int
}

// NewFakeSource creates a source holding items, listed newest first in the given order
func NewFakeSource(items ...*core.InboxItem) *FakeSource {
	f := &FakeSource{
		items:     make(map[string]*core.InboxItem),
		failures:  make(map[string]error),
		fullCalls: make(map[string]int),
	}
	for _, item := range items {
		f.Put(item)
	}
	return f
}

// Put adds or replaces an item. New items are appended to the listing.
func (f *FakeSource) Put(item *core.InboxItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		f.order = append(f.order, item.ID)
	}
	copied := *item
	f.items[item.ID] = &copied
}

// Remove deletes an item from the full-fetch view but keeps it listed
func (f *FakeSource) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
}

// FailFull makes FetchFull for id return err. A nil err clears the failure.
func (f *FakeSource) FailFull(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, id)
		return
	}
	f.failures[id] = err
}

// FailList makes FetchRecent return err
func (f *FakeSource) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FullCalls returns how many times FetchFull was called for id
func (f *FakeSource) FullCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullCalls[id]
}

// FetchRecent lists up to max ids in insertion order
func (f *FakeSource) FetchRecent(ctx context.Context, max int) ([]core.MessageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []core.MessageSummary{}
	for _, id := range f.order {
		if len(out) == max {
			break
		}
		s := core.MessageSummary{ID: id}
		if item, ok := f.items[id]; ok {
			s.ThreadID, s.Sender, s.Subject, s.Date, s.Snippet = item.ThreadID, item.Sender, item.Subject, item.Date, item.Snippet
		}
		out = append(out, s)
	}
	return out, nil
}

// FetchFull returns a copy of the stored item
func (f *FakeSource) FetchFull(ctx context.Context, id string) (*core.InboxItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullCalls[id]++
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrMessageNotFound, id)
	}
	copied := *item
	copied.CC = append([]string(nil), item.CC...)
	return &copied, nil
}
