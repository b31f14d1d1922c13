package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListOutput(t *testing.T) {
	output := `Path = 1.txt
Size = 11
Packed Size = 9
Attributes = A
CRC = ABCDEF12

Path = 2.txt
Size = 22
Packed Size = 18
Attributes = A
CRC = 12345678
`
	entries := parseListOutput([]byte(output))
	assert.Len(t, entries, 2)
	assert.Equal(t, "1.txt", entries[0].File)
	assert.EqualValues(t, 11, entries[0].Size)
	assert.EqualValues(t, 9, entries[0].SizeCompressed)
	assert.Equal(t, "ABCDEF12", entries[0].Hash)
	assert.Equal(t, "2.txt", entries[1].File)
}

func TestParseListOutputEmpty(t *testing.T) {
	assert.Empty(t, parseListOutput([]byte("")))
}
