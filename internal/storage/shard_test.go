package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want []string
	}{
		{key: "1234567890", want: []string{"12", "34", "56", "78"}},
		{key: "123", want: []string{"12", "3"}},
		{key: "12345678", want: []string{"12", "34", "56", "78"}},
		{key: "1546293948883s.jpg", want: []string{"15", "46", "29", "39"}},
		{key: "1", want: []string{"1"}},
		{key: "", want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ShardPath(tc.key))
			assert.Equal(t, tc.want, ShardPath(tc.key), "sharding must be deterministic")
		})
	}
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "g/15/46/29/39/1546293948883.png", ObjectName("g", "1546293948883.png"))
	assert.Equal(t, "12/3/123", ObjectName("", "123"))
}
