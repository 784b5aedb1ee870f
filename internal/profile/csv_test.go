package profile

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()

	in := `treeID,height,lad
b,2,0.5
a,1.5,0.1
a,0.5,NA
b,1,
a,1,0.2
`
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "b", got[0].TreeID)
	assert.Equal(t, []float64{1, 2}, got[0].Heights())
	assert.Equal(t, []float64{0, 0.5}, got[0].LADs())

	assert.Equal(t, "a", got[1].TreeID)
	assert.Equal(t, []float64{0.5, 1, 1.5}, got[1].Heights())
	assert.Equal(t, []float64{0, 0.2, 0.1}, got[1].LADs())
}

func TestReadCSV_ColumnAliases(t *testing.T) {
	t.Parallel()

	in := "LAD, Z ,Tree_ID\n0.3,2,x\n0.4,3,x\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].TreeID)
	assert.Equal(t, []float64{2, 3}, got[0].Heights())
	assert.Equal(t, []float64{0.3, 0.4}, got[0].LADs())
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		malformed bool
	}{
		{"empty input", "", true},
		{"missing lad column", "treeid,height\nt,1\n", true},
		{"missing height column", "treeid,lad\nt,1\n", true},
		{"bad height", "treeid,height,lad\nt,one,0\n", false},
		{"bad lad", "treeid,height,lad\nt,1,lots\n", false},
		{"ragged row", "treeid,height,lad\nt,1\n", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestReadCSV_KeepsInvalidTrees(t *testing.T) {
	t.Parallel()

	in := `treeID,height,lad
a,0.5,0.1
a,1.5,0.3
b,1.5,0.2
b,1.5,0.4
a,1,0.2
c,1,-2
`
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].TreeID)
	assert.NoError(t, got[0].Validate())

	assert.Equal(t, "b", got[1].TreeID)
	assert.Equal(t, []float64{1.5, 1.5}, got[1].Heights())
	assert.ErrorIs(t, got[1].Validate(), ErrMalformed)

	assert.Equal(t, "c", got[2].TreeID)
	assert.ErrorIs(t, got[2].Validate(), ErrMalformed)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	t.Parallel()

	got, err := ReadCSV(strings.NewReader("treeID,height,lad\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
