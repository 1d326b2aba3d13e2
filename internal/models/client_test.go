package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    ClientStatus
		wantErr bool
	}{
		{"active", ClientStatusActive, false},
		{" Blocked ", ClientStatusBlocked, false},
		{"WARNING", ClientStatusWarning, false},
		{"", "", true},
		{"paused", "", true},
	}
	for _, tt := range tests {
		got, err := ParseClientStatus(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidClientStatus, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestClientValidate(t *testing.T) {
	c := &Client{Name: "Acme", Status: ClientStatusActive}
	require.NoError(t, c.Validate())

	c.Quota = -1
	assert.ErrorIs(t, c.Validate(), ErrInvalidQuota)

	c = &Client{Name: "  ", Status: ClientStatusActive}
	assert.ErrorIs(t, c.Validate(), ErrInvalidClientName)

	c = &Client{Name: "Acme", Status: "unknown"}
	assert.ErrorIs(t, c.Validate(), ErrInvalidClientStatus)
}

func TestClientOwnsInfobase(t *testing.T) {
	c := &Client{Name: "Acme", Infobases: []string{"Acme_Buh", "acme_zup"}}
	assert.True(t, c.OwnsInfobase("ACME_BUH"))
	assert.True(t, c.OwnsInfobase("Acme_Zup"))
	assert.False(t, c.OwnsInfobase("other"))
	assert.True(t, (&Client{}).Unlimited())
}
