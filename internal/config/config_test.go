package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLanguages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain list", "en,ru,de", []string{"en", "ru", "de"}},
		{"whitespace trimmed", " en , ru ", []string{"en", "ru"}},
		{"empty entries dropped", "en,,ru,", []string{"en", "ru"}},
		{"single", "en", []string{"en"}},
		{"empty string", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLanguages(tt.input))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("FIREFEED_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("FIREFEED_TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("FIREFEED_TEST_INT_MISSING", 7))

	t.Setenv("FIREFEED_TEST_INT_BAD", "not a number")
	assert.Equal(t, 7, GetEnvInt("FIREFEED_TEST_INT_BAD", 7))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FIREFEED_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("FIREFEED_TEST_BOOL", false))

	t.Setenv("FIREFEED_TEST_BOOL", "0")
	assert.False(t, GetEnvBool("FIREFEED_TEST_BOOL", true))

	assert.True(t, GetEnvBool("FIREFEED_TEST_BOOL_MISSING", true))
}

func TestGetEnvDuration(t *testing.T) {
	// Bare numbers are read as seconds.
	t.Setenv("FIREFEED_TEST_DUR", "90")
	assert.Equal(t, 90*time.Second, GetEnvDuration("FIREFEED_TEST_DUR", time.Minute))

	assert.Equal(t, time.Minute, GetEnvDuration("FIREFEED_TEST_DUR_MISSING", time.Minute))
}
