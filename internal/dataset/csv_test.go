package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSemicolon(t *testing.T) {
	data := "\ufeff\"Num_Acc\";\"grav\";\"an_nais\"\n" +
		"\"202300000001\";\"3\";\"1990\"\n" +
		"\"202300000001\";\"4\"\n" +
		"\n"

	tbl, err := Read(strings.NewReader(data), ';')
	require.NoError(t, err)

	assert.Equal(t, []string{"Num_Acc", "grav", "an_nais"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "202300000001", tbl.Value(0, "Num_Acc"))
	assert.Equal(t, "", tbl.Value(1, "an_nais"))
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(""), ';')
	assert.Error(t, err)

	_, err = Read(strings.NewReader("a;b\n1;2;3\n"), ';')
	assert.Error(t, err)

	_, err = ReadCSV(filepath.Join(t.TempDir(), "absent.csv"), ';')
	assert.Error(t, err)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	tbl := New("Num_Acc", "vma")
	require.NoError(t, tbl.AppendRow([]string{"1", "50"}))
	require.NoError(t, tbl.AppendRow([]string{"2", "1;5"}))

	path := filepath.Join(t.TempDir(), "out", "final.csv")
	require.NoError(t, WriteCSV(path, tbl, ';'))

	back, err := ReadCSV(path, ';')
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns(), back.Columns())
	assert.Equal(t, "1;5", back.Value(1, "vma"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestWriteHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, New("a", "b"), ','))
	assert.Equal(t, "a,b\n", buf.String())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3", 3, true},
		{"(3)", 3, true},
		{" 1,5 ", 1.5, true},
		{"( 2 )", 2, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tt := range tests {
		got, ok := Coerce(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestParseFloatIsStrict(t *testing.T) {
	_, ok := ParseFloat("(3)")
	assert.False(t, ok)
	_, ok = ParseFloat("1,5")
	assert.False(t, ok)
	_, ok = ParseFloat("Inf")
	assert.False(t, ok)
	v, ok := ParseFloat(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "3", FormatFloat(3))
	assert.Equal(t, "-1", FormatFloat(-1))
	assert.Equal(t, "35.5", FormatFloat(35.5))
	assert.Equal(t, "", FormatFloat(math.NaN()))
	assert.Equal(t, "7", FormatInt(7))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, math.NaN(), 2, 3}))
	assert.True(t, math.IsNaN(Median([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(Median(nil)))
}
