package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []JSONOption
		fails    bool
	}{
		{name: "equal objects", actual: `{"a":1,"b":"x"}`, expected: `{"b":"x","a":1}`},
		{name: "extra keys ignored by default", actual: `{"a":1,"b":2}`, expected: `{"a":1}`},
		{name: "extra keys reported when requested", actual: `{"a":1,"b":2}`, expected: `{"a":1}`, opts: []JSONOption{WithIgnoreExtraKeys(false)}, fails: true},
		{name: "value mismatch", actual: `{"a":1}`, expected: `{"a":2}`, fails: true},
		{name: "presence placeholder", actual: `{"time":"2024-01-01T00:00:00Z"}`, expected: `{"time":"<<PRESENCE>>"}`},
		{name: "presence placeholder requires key", actual: `{}`, expected: `{"time":"<<PRESENCE>>"}`, fails: true},
		{name: "ignored fields at depth", actual: `[{"v":1,"time":"a"}]`, expected: `[{"v":1,"time":"b"}]`, opts: []JSONOption{WithIgnoredFields("time")}},
		{name: "root arrays", actual: `[1,2]`, expected: `[1,3]`, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.fails, len(rec.failures) > 0, "failures: %v", rec.failures)
		})
	}
}

func TestTextAsserter(t *testing.T) {
	rec := &recordingT{}
	ta := NewTextAsserter(rec)

	ta.Assert("\nNAME   VALUE  \nfoo    1\n", "NAME   VALUE\nfoo    1")
	assert.Empty(t, rec.failures, "surrounding and trailing whitespace MUST be ignored by default")

	ta.Assert("foo 1", "foo 2")
	if assert.Len(t, rec.failures, 1) {
		assert.Contains(t, rec.failures[0], "-foo 2")
		assert.Contains(t, rec.failures[0], "+foo 1")
	}
}
