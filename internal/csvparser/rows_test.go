package csvparser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowReader(t *testing.T) {
	rr, err := NewRowReader(strings.NewReader("phone number,name\r\n+16502532222,Ada\r\n,\r\n+16502532223\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"phone number", "name"}, rr.Header())

	first, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "Ada", first.Cell(1))

	second, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, second.Index)
	assert.Equal(t, "+16502532223", second.Cell(0))
	assert.Equal(t, "", second.Cell(1))
	assert.Equal(t, "", second.Cell(-1))

	_, err = rr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRowReaderEmpty(t *testing.T) {
	rr, err := NewRowReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, rr.Header())
	_, err = rr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRowReaderHeaderOnly(t *testing.T) {
	rr, err := NewRowReader(strings.NewReader("email address"))
	require.NoError(t, err)
	assert.Equal(t, []string{"email address"}, rr.Header())
	_, err = rr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
