package logstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_DetectsErrorKeyword(t *testing.T) {
	assert.Equal(t, LevelError, classify("2026-07-30 ERROR: connection refused"))
	assert.Equal(t, LevelError, classify("panic: runtime error"))
}

func TestClassify_DetectsWarnKeyword(t *testing.T) {
	assert.Equal(t, LevelWarn, classify("WARN: deprecated flag used"))
}

func TestClassify_DefaultsToInfo(t *testing.T) {
	assert.Equal(t, LevelInfo, classify("listening on :8080"))
}

func TestLineFrom_SplitsServicePrefixWhenServiceUnset(t *testing.T) {
	l := lineFrom("", "api  | listening on :8080")
	assert.Equal(t, "api", l.Service)
	assert.Equal(t, "listening on :8080", l.Text)
}

func TestLineFrom_KeepsGivenServiceVerbatim(t *testing.T) {
	l := lineFrom("db", "accepting connections")
	assert.Equal(t, "db", l.Service)
	assert.Equal(t, "accepting connections", l.Text)
}

func TestStream_SubscribeDetachTerminatesOnLastUnsubscribe(t *testing.T) {
	var cancelled bool
	s := &Stream{
		subscribers: make(map[chan Line]bool),
		cancel:      func() { cancelled = true },
		done:        make(chan struct{}),
	}

	_, cancel1 := s.Subscribe()
	_, cancel2 := s.Subscribe()

	cancel1()
	assert.False(t, cancelled, "should not cancel while a subscriber remains")

	cancel2()
	assert.True(t, cancelled, "should cancel once the last subscriber detaches")
}

func TestStream_PublishDeliversToAllSubscribers(t *testing.T) {
	s := &Stream{
		subscribers: make(map[chan Line]bool),
		cancel:      func() {},
		done:        make(chan struct{}),
	}
	ch1, _ := s.Subscribe()
	ch2, _ := s.Subscribe()

	s.publish(Line{Text: "hello", Level: LevelInfo})

	assert.Equal(t, "hello", (<-ch1).Text)
	assert.Equal(t, "hello", (<-ch2).Text)
}
