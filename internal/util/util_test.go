package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(11) 98765-4321":    "5511987654321",
		"011 98765-4321":     "5511987654321",
		"+55 11 98765-4321":  "5511987654321",
		"0055 11 98765 4321": "5511987654321",
		"  21 3456-7890 ":    "552134567890",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestNewID_Monotonic(t *testing.T) {
	at := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	a := NewID(at)
	b := NewID(at)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
