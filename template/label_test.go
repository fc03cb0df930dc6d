package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quarterParams struct {
	Year    int
	Quarter int
}

func TestLabel_Render(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		params   any
		expected string
		wantErr  bool
	}{
		{
			name:     "year first",
			text:     "{{.Year}} Q{{.Quarter}}",
			params:   quarterParams{Year: 2022, Quarter: 3},
			expected: "2022 Q3",
		},
		{
			name:     "quarter first",
			text:     "Q{{.Quarter}} {{.Year}}",
			params:   quarterParams{Year: 2023, Quarter: 1},
			expected: "Q1 2023",
		},
		{
			name:    "unknown field",
			text:    "{{.Decade}}",
			params:  quarterParams{Year: 2023, Quarter: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := NewLabel("quarter_year", tt.text)
			require.NoError(t, err)

			got, err := label.Render(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewLabel_ParseError(t *testing.T) {
	_, err := NewLabel("quarter_year", "{{.Year")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse quarter_year template")
}
