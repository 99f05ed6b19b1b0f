package tags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Meme, Funny ,cat,cat", []string{"meme", "funny", "cat"}},
		{"", []string{}},
		{" , ,,", []string{}},
		{"CAT,cat,Cat", []string{"cat"}},
		{"  good morning , bom dia", []string{"good morning", "bom dia"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"Meme, Funny ,cat,cat", "A,b,  C ,a", ""} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(strings.Join(once, ",")))
	}
}

func TestNormalizeAll(t *testing.T) {
	assert.Equal(t, []string{"meme", "cat", "dog"}, NormalizeAll([]string{"Meme, cat", "DOG", "meme"}))
}
