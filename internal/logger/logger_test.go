package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   Debug,
		" DEBUG ": Debug,
		"warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"info":    Info,
		"":        Info,
		"verbose": Info,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNopLoggerWith(t *testing.T) {
	l := NewNopLogger().With("account", "acc-1")
	l.Infof("fetch %s", "ok")
	l.Debugln("a", "b")
	assert.NoError(t, l.Sync())
}
