package torlib

import (
	"bytes"
	"testing"

	"github.com/ivanjermakov/biter/bencode"
	"github.com/stretchr/testify/require"
)

func buildSingleFileMetaInfo(t *testing.T) []byte {
	t.Helper()
	pieces := bytes.Repeat([]byte{0xAB}, 20*3)
	info := bencode.Dict(map[string]bencode.Value{
		"piece length": bencode.Int(16384),
		"pieces":       bencode.String(pieces),
		"name":         bencode.StringFrom("movie.mp4"),
		"length":       bencode.Int(16384*2 + 100),
	})
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.StringFrom("http://tracker.example.com/announce"),
		"info":     info,
	})
	return bencode.Marshal(root)
}

func buildMultiFileMetaInfo(t *testing.T) []byte {
	t.Helper()
	pieces := bytes.Repeat([]byte{0xCD}, 20*2)
	files := bencode.List([]bencode.Value{
		bencode.Dict(map[string]bencode.Value{
			"length": bencode.Int(1000),
			"path":   bencode.List([]bencode.Value{bencode.StringFrom("a.txt")}),
		}),
		bencode.Dict(map[string]bencode.Value{
			"length": bencode.Int(2000),
			"path": bencode.List([]bencode.Value{
				bencode.StringFrom("sub"), bencode.StringFrom("b.txt"),
			}),
		}),
	})
	info := bencode.Dict(map[string]bencode.Value{
		"piece length": bencode.Int(16384),
		"pieces":       bencode.String(pieces),
		"name":         bencode.StringFrom("bundle"),
		"files":        files,
	})
	root := bencode.Dict(map[string]bencode.Value{
		"announce-list": bencode.List([]bencode.Value{
			bencode.List([]bencode.Value{bencode.StringFrom("udp://tracker1.example.com:80")}),
			bencode.List([]bencode.Value{bencode.StringFrom("http://tracker2.example.com/announce")}),
		}),
		"info": info,
	})
	return bencode.Marshal(root)
}

func TestParseMetaInfoSingleFile(t *testing.T) {
	raw := buildSingleFileMetaInfo(t)
	mi, err := ParseMetaInfoBytes(raw)
	require.NoError(t, err)
	require.Equal(t, "movie.mp4", mi.Name())
	require.Equal(t, int64(16384*2+100), mi.Info.TotalLength())
	require.Equal(t, 3, mi.Info.NumPieces())
	require.Equal(t, 3, mi.Info.ExpectedNumPieces())
	require.False(t, mi.PieceCountMismatch())
	require.Equal(t, AnnounceList{{"http://tracker.example.com/announce"}}, mi.AnnounceTiers())
}

func TestParseMetaInfoMultiFile(t *testing.T) {
	raw := buildMultiFileMetaInfo(t)
	mi, err := ParseMetaInfoBytes(raw)
	require.NoError(t, err)
	require.Equal(t, "bundle", mi.Name())
	require.Len(t, mi.Info.Files, 2)
	require.Equal(t, "sub/b.txt", mi.Info.Files[1].JoinedPath())
	require.Equal(t, int64(3000), mi.Info.TotalLength())
	require.Len(t, mi.AnnounceTiers(), 2)
}

// Property 3: the same info dict always yields the same info-hash, and
// distinct info dicts never (observably) collide.
func TestInfoHashDeterministic(t *testing.T) {
	raw := buildSingleFileMetaInfo(t)
	mi1, err := ParseMetaInfoBytes(raw)
	require.NoError(t, err)
	mi2, err := ParseMetaInfoBytes(raw)
	require.NoError(t, err)
	require.Equal(t, mi1.InfoHash, mi2.InfoHash)

	other := buildMultiFileMetaInfo(t)
	mi3, err := ParseMetaInfoBytes(other)
	require.NoError(t, err)
	require.NotEqual(t, mi1.InfoHash, mi3.InfoHash)
}

func TestParseMetaInfoRejectsTrailingData(t *testing.T) {
	raw := append(buildSingleFileMetaInfo(t), 'x')
	_, err := ParseMetaInfoBytes(raw)
	require.Error(t, err)
}

func TestParseMetaInfoMissingInfo(t *testing.T) {
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.StringFrom("http://tracker.example.com/announce"),
	})
	_, err := ParseMetaInfoBytes(bencode.Marshal(root))
	require.Error(t, err)
}

func TestParseMetaInfoPieceCountMismatchIsWarnOnly(t *testing.T) {
	info := bencode.Dict(map[string]bencode.Value{
		"piece length": bencode.Int(16384),
		"pieces":       bencode.String(bytes.Repeat([]byte{0xAB}, 20*1)),
		"name":         bencode.StringFrom("odd.bin"),
		"length":       bencode.Int(16384 * 5),
	})
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.StringFrom("http://tracker.example.com/announce"),
		"info":     info,
	})
	mi, err := ParseMetaInfoBytes(bencode.Marshal(root))
	require.NoError(t, err)
	require.True(t, mi.PieceCountMismatch())
}

func TestParseMagnet(t *testing.T) {
	uri := "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=Example&tr=http://tracker.example.com/announce"
	m, err := ParseMagnet(uri)
	require.NoError(t, err)
	require.Equal(t, "Example", m.DisplayName)
	require.Equal(t, "0123456789abcdef0123456789abcdef01234567", m.InfoHash.Hex())
	require.Equal(t, AnnounceList{{"http://tracker.example.com/announce"}}, m.AnnounceList)
}

func TestParseMagnetRejectsNonMagnet(t *testing.T) {
	_, err := ParseMagnet("http://example.com")
	require.Error(t, err)
}

func TestParseMagnetRequiresXt(t *testing.T) {
	_, err := ParseMagnet("magnet:?dn=Example")
	require.Error(t, err)
}

func TestInfoFixtureRoundTrips(t *testing.T) {
	info := NewInfoFixture("file.bin", 16384, 16384*4+1)
	require.Equal(t, 5, info.NumPieces())
	mi := NewMetaInfoFixture(info)
	require.NotEmpty(t, mi.InfoHash.Hex())
}
