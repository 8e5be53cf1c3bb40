package logging

import (
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Lvl
	}{
		{"debug", log.DEBUG},
		{"INFO", log.INFO},
		{"warning", log.WARN},
		{" error ", log.ERROR},
		{"off", log.OFF},
		{"bogus", log.INFO},
		{"", log.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetLevelAppliesToExistingLoggers(t *testing.T) {
	l := New("test")
	SetLevel("error")
	defer SetLevel("info")

	assert.Equal(t, log.ERROR, l.Level())
	assert.Equal(t, log.ERROR, New("later").Level())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", ShortID("1234567890abcdef"))
	assert.Equal(t, "abc", ShortID("abc"))
}
