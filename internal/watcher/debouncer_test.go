package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(30*time.Millisecond, 4)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: "/m/a.png", Operation: OpCreate, Timestamp: time.Now()})

	// Then: it is emitted after the window
	events := receive(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "/m/a.png", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_BurstBecomesOneSortedBatch(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 4)
	defer d.Stop()

	for _, p := range []string{"/m/c.png", "/m/a.png", "/m/b.png", "/m/a.png"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	events := receive(t, d, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, "/m/a.png", events[0].Path)
	assert.Equal(t, "/m/b.png", events[1].Path)
	assert.Equal(t, "/m/c.png", events[2].Path)
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, 4)
	defer d.Stop()

	d.Add(FileEvent{Path: "/m/tmp.png", Operation: OpCreate})
	d.Add(FileEvent{Path: "/m/tmp.png", Operation: OpDelete})

	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch: %v", events)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name  string
		first Operation
		next  Operation
		want  Operation
		keep  bool
	}{
		{"create+modify", OpCreate, OpModify, OpCreate, true},
		{"create+delete", OpCreate, OpDelete, 0, false},
		{"create+rename", OpCreate, OpRename, 0, false},
		{"delete+create", OpDelete, OpCreate, OpModify, true},
		{"rename+create", OpRename, OpCreate, OpModify, true},
		{"modify+delete", OpModify, OpDelete, OpDelete, true},
		{"modify+modify", OpModify, OpModify, OpModify, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := FileEvent{Path: "/x.png", Operation: tt.first}
			next := FileEvent{Path: "/x.png", Operation: tt.next}
			merged, keep := coalesce(tt.first, prev, next)
			assert.Equal(t, tt.keep, keep)
			if keep {
				assert.Equal(t, tt.want, merged.Operation)
			}
		})
	}
}

func TestDebouncer_FullBufferDropsBatch(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, 1)
	defer d.Stop()

	d.Add(FileEvent{Path: "/m/a.png", Operation: OpCreate})
	time.Sleep(60 * time.Millisecond)
	d.Add(FileEvent{Path: "/m/b.png", Operation: OpCreate})
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, d.Dropped())
	events := receive(t, d, time.Second)
	assert.Equal(t, "/m/a.png", events[0].Path)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, 1)
	d.Add(FileEvent{Path: "/m/a.png", Operation: OpCreate})
	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/m/b.png", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
