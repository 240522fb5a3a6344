package wire

import (
	"bytes"
	"testing"

	"github.com/ivanjermakov/biter/core"
	"github.com/stretchr/testify/require"
)

func testInfoHash(t *testing.T) core.InfoHash {
	t.Helper()
	h, err := core.NewInfoHashFromRawBytes(bytes.Repeat([]byte{0x11}, 20))
	require.NoError(t, err)
	return h
}

func testPeerID(t *testing.T) core.PeerID {
	t.Helper()
	id, err := core.NewPeerIDFromBytes(bytes.Repeat([]byte{0x22}, 20))
	require.NoError(t, err)
	return id
}

// S2: a handshake round-trips byte-for-byte through WriteHandshake/ReadHandshake.
func TestHandshakeRoundTrip(t *testing.T) {
	h := Handshake{
		Reserved: NewReserved(FeatureDHT, FeatureExtension),
		InfoHash: testInfoHash(t),
		PeerID:   testPeerID(t),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, h))
	require.Equal(t, handshakeLen, buf.Len())

	got, err := ReadHandshake(&buf)
	require.NoError(t, err)
	require.Equal(t, h.InfoHash, got.InfoHash)
	require.Equal(t, h.PeerID, got.PeerID)
	require.Equal(t, h.Reserved, got.Reserved)
	require.True(t, FeatureDHT.Enabled(got.Reserved))
	require.True(t, FeatureExtension.Enabled(got.Reserved))
}

func TestHandshakeRejectsBadProtocolString(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, Handshake{InfoHash: testInfoHash(t), PeerID: testPeerID(t)}))
	b := buf.Bytes()
	b[5] = 'x'
	_, err := ReadHandshake(bytes.NewReader(b))
	require.Error(t, err)
}

func TestFeatureBitsIndependent(t *testing.T) {
	reserved := NewReserved(FeatureDHT)
	require.True(t, FeatureDHT.Enabled(reserved))
	require.False(t, FeatureExtension.Enabled(reserved))
}

// Property 2: every message type round-trips through WriteMessage/ReadMessage.
func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		KeepAliveMessage(),
		ChokeMessage(),
		UnchokeMessage(),
		InterestedMessage(),
		NotInterestedMessage(),
		HaveMessage(7),
		BitfieldMessage([]byte{0xF0, 0x0F}),
		RequestMessage(1, 16384, 16384),
		PieceMessage(1, 0, []byte("some block payload")),
		CancelMessage(1, 16384, 16384),
		PortMessage(6881),
		ExtendedMessage(0, []byte("d1:mde")),
	}
	for _, msg := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, msg))
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}
}

func TestReadMessageRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, maxMessageLength+1))
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}

func TestReadMessageRejectsWrongFixedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, 2))
	require.NoError(t, writeByte(&buf, byte(IDChoke)))
	require.NoError(t, writeByte(&buf, 0))
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}

func TestBitfieldRoundTrip(t *testing.T) {
	have := DecodeBitfield([]byte{0b10100000}, 3)
	require.True(t, have.Test(0))
	require.False(t, have.Test(1))
	require.True(t, have.Test(2))

	raw := EncodeBitfield(have, 3)
	require.Equal(t, []byte{0b10100000}, raw)
}

func TestExtHandshakeRoundTrip(t *testing.T) {
	payload := EncodeExtHandshake(UTMetadataExtension)
	hs, err := DecodeExtHandshake(payload)
	require.NoError(t, err)
	require.Equal(t, uint8(1), hs.M[UTMetadataExtension])
}

func TestMetadataMessageRoundTrip(t *testing.T) {
	req := EncodeMetadataRequest(3)
	decoded, err := DecodeMetadataMessage(req)
	require.NoError(t, err)
	require.Equal(t, MetadataRequest, decoded.Type)
	require.Equal(t, 3, decoded.Piece)

	block := []byte("d4:infod...ee")
	data := EncodeMetadataData(3, len(block), block)
	decoded, err = DecodeMetadataMessage(data)
	require.NoError(t, err)
	require.Equal(t, MetadataData, decoded.Type)
	require.Equal(t, 3, decoded.Piece)
	require.Equal(t, len(block), decoded.TotalSize)
	require.Equal(t, block, decoded.Block)

	rej := EncodeMetadataReject(3)
	decoded, err = DecodeMetadataMessage(rej)
	require.NoError(t, err)
	require.Equal(t, MetadataReject, decoded.Type)
}
