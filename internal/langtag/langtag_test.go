package langtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "simple code", in: "en", want: "en"},
		{name: "alias chinese", in: "Chinese", want: "zh"},
		{name: "region subtag", in: "zh-CN", want: "zh"},
		{name: "extlang", in: "zh-yue", want: "yue"},
		{name: "jp mistake", in: "jp", wantErr: true},
		{name: "garbage", in: "xx-not-a-lang-zzz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := Resolve(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tag.Code())
		})
	}
}

func TestGuessFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantOK   bool
		wantCode string
	}{
		{filename: "movie.en.srt", wantOK: true, wantCode: "en"},
		{filename: "show.s01e01.zh-Hans.ass", wantOK: true, wantCode: "zh"},
		{filename: "show.s01e01.srt", wantOK: false},
		{filename: "a", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			tag, ok := GuessFromFilename(tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantCode, tag.Code())
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a, err := Resolve("zh")
	require.NoError(t, err)
	b, err := Resolve("Chinese")
	require.NoError(t, err)
	assert.True(t, Equal(a, b))

	c, err := Resolve("en")
	require.NoError(t, err)
	assert.False(t, Equal(a, c))
}
