package uuid

import (
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLocalID_isV7(t *testing.T) {
	id := GenerateLocalID()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.True(t, IsValid(id))
}

func TestGenerateLocalID_unique(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id := GenerateLocalID()
		require.False(t, seen[id], "duplicate local id %s", id)
		seen[id] = true
	}
}

func TestGenerateLocalID_sortsByCreationTime(t *testing.T) {
	first := GenerateLocalID()
	time.Sleep(2 * time.Millisecond)
	second := GenerateLocalID()

	ids := []string{second, first}
	sort.Strings(ids)
	assert.Equal(t, []string{first, second}, ids)
}

func TestNew_isV4(t *testing.T) {
	parsed, err := uuid.Parse(New())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"v4", "550e8400-e29b-41d4-a716-446655440000", false},
		{"v7", "01890a5d-ac96-774b-bcce-b302099a8057", false},
		{"v1 rejected", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"no dashes", "550e8400e29b41d4a716446655440000", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
