package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
clients:
  - name: Acme
    quota: 10
    infobases: [acme_buh, acme_zup]
  - name: Beta
    status: blocked
    infobases:
      - beta_trade
`

const sampleTOML = `
[[clients]]
name = "Acme"
quota = 10
infobases = ["acme_buh", "acme_zup"]

[[clients]]
name = "Beta"
status = "blocked"
infobases = ["beta_trade"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_FormatsAgree(t *testing.T) {
	fromYAML, err := LoadFile(writeFile(t, "clients.yml", sampleYAML))
	require.NoError(t, err)
	fromTOML, err := LoadFile(writeFile(t, "clients.toml", sampleTOML))
	require.NoError(t, err)

	require.Len(t, fromYAML, 2)
	assert.Equal(t, fromYAML, fromTOML)

	assert.Equal(t, "Acme", fromYAML[0].Name)
	assert.Equal(t, 10, fromYAML[0].Quota)
	assert.Equal(t, models.ClientStatusActive, fromYAML[0].Status)
	assert.Equal(t, []string{"acme_buh", "acme_zup"}, fromYAML[0].Infobases)
	assert.Equal(t, models.ClientStatusBlocked, fromYAML[1].Status)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"unknown yaml field", "clients:\n  - name: A\n    limit: 3\n", FormatYAML},
		{"unknown toml field", "[[clients]]\nname = \"A\"\nlimit = 3\n", FormatTOML},
		{"bad status", "clients:\n  - name: A\n    status: paused\n", FormatYAML},
		{"negative quota", "clients:\n  - name: A\n    quota: -1\n", FormatYAML},
		{"missing name", "clients:\n  - quota: 1\n", FormatYAML},
		{"duplicate name", "clients:\n  - name: A\n  - name: a\n", FormatYAML},
		{"shared infobase", "clients:\n  - name: A\n    infobases: [x]\n  - name: B\n    infobases: [X]\n", FormatYAML},
		{"blank infobase", "clients:\n  - name: A\n    infobases: [\" \"]\n", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	clients, err := Parse([]byte(""), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFile(writeFile(t, "clients.json", "{}"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestImport(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()

	clients, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	result, err := Import(ctx, env.ClientRepo, clients, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Beta"}, result.Created)
	assert.Equal(t, 3, result.Assigned)

	updated := `
clients:
  - name: acme
    quota: 20
    infobases: [acme_buh, acme_trade]
`
	next, err := Parse([]byte(updated), FormatYAML)
	require.NoError(t, err)

	result, err = Import(ctx, env.ClientRepo, next, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, result.Skipped)

	result, err = Import(ctx, env.ClientRepo, next, ImportOptions{Update: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	acme, err := env.ClientRepo.GetByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 10, acme.Quota, "dry run must not write")

	result, err = Import(ctx, env.ClientRepo, next, ImportOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, result.Updated)

	acme, err = env.ClientRepo.GetByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 20, acme.Quota)
	assert.Equal(t, []string{"acme_buh", "acme_zup", "acme_trade"}, acme.Infobases)
}

func TestImport_ConflictWithExistingOwner(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()
	require.NoError(t, env.ClientRepo.Create(ctx, &models.Client{Name: "Owner", Infobases: []string{"shared"}}))

	clients := []*models.Client{{Name: "Other", Status: models.ClientStatusActive, Infobases: []string{"shared"}}}
	_, err := Import(ctx, env.ClientRepo, clients, ImportOptions{})

	assert.ErrorIs(t, err, db.ErrInfobaseAssigned)
}

func TestMarshal_RoundTrip(t *testing.T) {
	clients := []*models.Client{
		{Name: "Acme", Quota: 10, Status: models.ClientStatusActive, Infobases: []string{"acme_buh", "acme_zup"}},
		{Name: "Beta", Status: models.ClientStatusBlocked, Infobases: []string{"beta_trade"}},
	}

	for _, format := range []Format{FormatYAML, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Marshal(FromClients(clients), format)
			require.NoError(t, err)

			parsed, err := Parse(data, format)
			require.NoError(t, err)
			require.Len(t, parsed, 2)
			assert.Equal(t, "Acme", parsed[0].Name)
			assert.Equal(t, 10, parsed[0].Quota)
			assert.Equal(t, []string{"acme_buh", "acme_zup"}, parsed[0].Infobases)
			assert.Equal(t, models.ClientStatusBlocked, parsed[1].Status)
		})
	}
}
