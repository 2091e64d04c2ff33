package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(1)
	c.Emit(Event{Kind: KindCacheMiss, URL: "a"})
	c.Emit(Event{Kind: KindCacheMiss, URL: "b"})

	assert.Equal(t, int64(1), c.Dropped())
	got := <-c.C
	assert.Equal(t, "a", got.URL)
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := LogSink{Logger: zap.New(core)}

	sink.Emit(Event{Kind: KindCacheMiss, URL: "https://h/x", Query: "id=1", Body: []byte("{}")})
	sink.Emit(Event{Kind: KindRecorded, URL: "https://h/y"})

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		assert.Equal(t, "id=1", entries[0].ContextMap()["query"])
		assert.Equal(t, zap.DebugLevel, entries[1].Level)
		assert.NotContains(t, entries[1].ContextMap(), "query")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewChannel(1), NewChannel(1)
	Multi{a, nil, b, Discard{}}.Emit(Event{Kind: KindFlushed})

	assert.Len(t, a.C, 1)
	assert.Len(t, b.C, 1)
}
