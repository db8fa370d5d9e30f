package source

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleBuildIndex() {
	fmt.Println(BuildIndex(1, 2018, 'a'))
	fmt.Println(BuildIndex(123456, 2022, 'c'))
	// Output:
	// 2018a_000000001
	// 2022c_000123456
}

func ExampleTypeCode() {
	c, _ := TypeCode("2019_public_lar_three_year_pipe.zip")
	fmt.Printf("%c\n", c)
	c, _ = TypeCode("2020_lar_one_year_pipe.zip")
	fmt.Printf("%c\n", c)
	c, _ = TypeCode("2021_public_lar_pipe.zip")
	fmt.Printf("%c\n", c)
	// Output:
	// a
	// b
	// c
}

func TestTypeCode(t *testing.T) {
	// precedence: three_year beats the public_lar substring
	c, err := TypeCode("2018_public_lar_three_year.zip")
	assert.NoError(t, err)
	assert.Equal(t, byte('a'), c)

	c, err = TypeCode("HMS.U2017.LARS.NATIONWIDE.zip")
	assert.NoError(t, err)
	assert.Equal(t, byte('d'), c)

	c, err = TypeCode("2023_mlar_header.zip")
	assert.NoError(t, err)
	assert.Equal(t, byte('e'), c)

	_, err = TypeCode("somefile_2019.zip")
	assert.True(t, errors.Is(err, ErrFileType))
}

func TestDelimiter(t *testing.T) {
	pipe := []byte("a|b|c\n1|2|3\n4|5|6\ntrunc")
	d, err := Delimiter(pipe)
	assert.NoError(t, err)
	assert.Equal(t, byte('|'), d)

	comma := []byte("a,b,c\n1,2,3\n4,5,6\n")
	d, err = Delimiter(comma)
	assert.NoError(t, err)
	assert.Equal(t, byte(','), d)

	// inconsistent counts on every candidate
	bad := []byte("a|b\nc|d|e\nf,g\nh,i,j\nx\ttrunc")
	_, err = Delimiter(bad)
	assert.True(t, errors.Is(err, ErrDelimiter))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "2019_public_lar_three_year_pipe", Stem("/raw/loans/2019_public_lar_three_year_pipe.zip"))
	assert.Equal(t, "hms_u2017_lars_nationwide", Stem("HMS.U2017.LARS.NATIONWIDE.zip"))
}

func TestRank(t *testing.T) {
	// snapshot beats one-year beats three-year
	assert.Equal(t, byte('c'), Master([]byte{'a', 'b', 'c'}))
	assert.Equal(t, byte('b'), Master([]byte{'a', 'b'}))
	assert.Equal(t, byte(0), Master(nil))
	// snapshot beats the modified LAR; everything beats the legacy archive
	assert.Equal(t, byte('c'), Master([]byte{'c', 'e'}))
	assert.Greater(t, Rank('e'), Rank('d'))
}

func TestDatasetMatches(t *testing.T) {
	assert.True(t, Loans.Matches("2019_public_lar_three_year_pipe.zip"))
	assert.False(t, Loans.Matches("2019_public_panel_csv.zip"))
	assert.True(t, Panel.Matches("2019_public_panel_csv.zip"))
	assert.True(t, TS.Matches("2019_public_ts_csv.zip"))
	assert.False(t, TS.Matches("2019_public_lar_csv.zip"))
}
