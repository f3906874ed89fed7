package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionValidate(t *testing.T) {
	valid := func() *Definition {
		return &Definition{
			Name: "renames",
			Source: Source{
				Kind: SourceKindPostgres,
				DSN:  "postgres://localhost/lookups?sslmode=disable",
			},
			Table:       "renames",
			KeyColumn:   "key",
			ValueColumn: "val",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr error
	}{
		{
			name:   "valid postgres definition",
			mutate: func(_ *Definition) {},
		},
		{
			name:    "missing name",
			mutate:  func(d *Definition) { d.Name = "" },
			wantErr: ErrNameRequired,
		},
		{
			name:    "unknown source kind",
			mutate:  func(d *Definition) { d.Source.Kind = "mongodb" },
			wantErr: ErrUnknownSourceKind,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(d *Definition) { d.Source.DSN = "" },
			wantErr: ErrDSNRequired,
		},
		{
			name:    "postgres without table",
			mutate:  func(d *Definition) { d.Table = "" },
			wantErr: ErrTableRequired,
		},
		{
			name:    "postgres without value column",
			mutate:  func(d *Definition) { d.ValueColumn = "" },
			wantErr: ErrColumnsRequired,
		},
		{
			name: "postgres query override relaxes table and columns",
			mutate: func(d *Definition) {
				d.Table = ""
				d.KeyColumn = ""
				d.ValueColumn = ""
				d.Query = "SELECT k, v FROM custom"
			},
		},
		{
			name: "redis without addr",
			mutate: func(d *Definition) {
				d.Source = Source{Kind: SourceKindRedis}
			},
			wantErr: ErrAddrRequired,
		},
		{
			name: "redis without hash key",
			mutate: func(d *Definition) {
				d.Source = Source{Kind: SourceKindRedis, Addr: "localhost:6379"}
				d.Table = ""
			},
			wantErr: ErrTableRequired,
		},
		{
			name: "valid redis definition",
			mutate: func(d *Definition) {
				d.Source = Source{Kind: SourceKindRedis, Addr: "localhost:6379"}
			},
		},
		{
			name: "uri without uri",
			mutate: func(d *Definition) {
				d.Source = Source{Kind: SourceKindURI}
			},
			wantErr: ErrURIRequired,
		},
		{
			name: "valid uri definition",
			mutate: func(d *Definition) {
				d.Source = Source{Kind: SourceKindURI, URI: "https://example.com/renames.tsv"}
				d.Table = ""
				d.KeyColumn = ""
				d.ValueColumn = ""
			},
		},
		{
			name:    "invalid schedule",
			mutate:  func(d *Definition) { d.Schedule = "not a schedule" },
			wantErr: nil, // wrapped parse error, checked below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid()
			tt.mutate(def)

			err := def.Validate()

			switch {
			case tt.name == "invalid schedule":
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid schedule")
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestDefinitionVersioned(t *testing.T) {
	def := &Definition{Name: "renames"}
	assert.False(t, def.Versioned())

	def.TSColumn = "updated_at"
	assert.True(t, def.Versioned())
}
