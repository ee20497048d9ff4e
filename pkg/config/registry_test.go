package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolServerRegistry(t *testing.T) {
	servers := []*ToolServer{
		{Name: "hr", Endpoint: "http://hr:8000", RequiredRoles: []string{"hr-read"}},
		{Name: "finance", Endpoint: "http://finance:8000", RequiredRoles: []string{"finance-read", "finance-write"}},
	}
	r := NewToolServerRegistry(servers)

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("hr"))
	assert.False(t, r.Has("sales"))

	got, err := r.Get("finance")
	require.NoError(t, err)
	assert.Equal(t, "http://finance:8000", got.Endpoint)

	_, err = r.Get("sales")
	assert.ErrorIs(t, err, ErrServerNotFound)

	assert.Equal(t, []string{"hr", "finance"}, r.Names())
}

func TestAccessibleTo(t *testing.T) {
	s := &ToolServer{Name: "hr", RequiredRoles: []string{"hr-read", "hr-admin"}}

	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"matching role", []string{"hr-read"}, true},
		{"one of several", []string{"finance-read", "hr-admin"}, true},
		{"no overlap", []string{"finance-read"}, false},
		{"empty roles", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.AccessibleTo(tt.roles))
		})
	}
}
