package wire

import (
	"fmt"

	"github.com/ivanjermakov/biter/bencode"
)

// ExtHandshakeID is the fixed sub-id (0) reserved by BEP-10 for the
// extension handshake itself; every other sub-id is locally assigned by
// whichever peer sent the handshake that introduced it.
const ExtHandshakeID uint8 = 0

// ExtensionName is a BEP-10 extension identified by its registered name.
type ExtensionName string

// UTMetadataExtension is the only extension this client advertises (BEP-9).
const UTMetadataExtension ExtensionName = "ut_metadata"

// ExtHandshake is the decoded form of the ext_id=0 payload: a bencoded dict
// whose "m" sub-dict maps extension names to the sub-id the sender wants
// them addressed by.
type ExtHandshake struct {
	M map[ExtensionName]uint8
}

// EncodeExtHandshake builds the ext_id=0 payload advertising the given
// extensions, each assigned the sub-id it appears at (starting from 1, per
// convention -- 0 is reserved for the handshake itself).
func EncodeExtHandshake(extensions ...ExtensionName) []byte {
	m := make(map[string]bencode.Value, len(extensions))
	for i, name := range extensions {
		m[string(name)] = bencode.Int(int64(i + 1))
	}
	root := bencode.Dict(map[string]bencode.Value{
		"m": bencode.Dict(m),
	})
	return bencode.Marshal(root)
}

// DecodeExtHandshake parses an ext_id=0 payload.
func DecodeExtHandshake(payload []byte) (ExtHandshake, error) {
	v, tail, err := bencode.DecodeBytes(payload)
	if err != nil {
		return ExtHandshake{}, fmt.Errorf("decode extension handshake: %w", err)
	}
	_ = tail
	root, ok := v.Dict()
	if !ok {
		return ExtHandshake{}, fmt.Errorf("extension handshake is not a dict")
	}
	mVal, ok := root["m"]
	if !ok {
		return ExtHandshake{}, fmt.Errorf("extension handshake missing 'm'")
	}
	mDict, ok := mVal.Dict()
	if !ok {
		return ExtHandshake{}, fmt.Errorf("extension handshake 'm' is not a dict")
	}
	m := make(map[ExtensionName]uint8, len(mDict))
	for name, idVal := range mDict {
		id, ok := idVal.Int()
		if !ok {
			continue
		}
		m[ExtensionName(name)] = uint8(id)
	}
	return ExtHandshake{M: m}, nil
}

// MetadataMsgType is the ut_metadata sub-message type (BEP-9 section on
// metadata exchange).
type MetadataMsgType int64

const (
	MetadataRequest MetadataMsgType = 0
	MetadataData    MetadataMsgType = 1
	MetadataReject  MetadataMsgType = 2
)

// MetadataPieceSize is the fixed chunk size ut_metadata splits the info dict
// into; every piece except the last is exactly this size.
const MetadataPieceSize = 16 * 1024

// MetadataMessage is a decoded ut_metadata sub-message. Data additionally
// carries the raw info-dict bytes appended after the bencoded header, which
// is why DecodeMetadataMessage returns the decoder's unconsumed tail as
// Block instead of expecting it inside the dict.
type MetadataMessage struct {
	Type      MetadataMsgType
	Piece     int
	TotalSize int
	Block     []byte
}

// EncodeMetadataRequest builds a request for metadata piece index piece.
func EncodeMetadataRequest(piece int) []byte {
	return bencode.Marshal(bencode.Dict(map[string]bencode.Value{
		"msg_type": bencode.Int(int64(MetadataRequest)),
		"piece":    bencode.Int(int64(piece)),
	}))
}

// EncodeMetadataData builds a data message carrying one metadata piece.
// block is appended raw after the bencoded header, per BEP-9.
func EncodeMetadataData(piece, totalSize int, block []byte) []byte {
	header := bencode.Marshal(bencode.Dict(map[string]bencode.Value{
		"msg_type":   bencode.Int(int64(MetadataData)),
		"piece":      bencode.Int(int64(piece)),
		"total_size": bencode.Int(int64(totalSize)),
	}))
	return append(header, block...)
}

// EncodeMetadataReject builds a reject message for the given piece.
func EncodeMetadataReject(piece int) []byte {
	return bencode.Marshal(bencode.Dict(map[string]bencode.Value{
		"msg_type": bencode.Int(int64(MetadataReject)),
		"piece":    bencode.Int(int64(piece)),
	}))
}

// DecodeMetadataMessage parses a ut_metadata sub-message. For Data messages,
// any bytes left over after the bencoded header are the metadata piece
// itself -- BEP-9 appends it raw rather than bencoding it as a string, since
// the piece is itself bencoded content (part of the eventual info dict).
func DecodeMetadataMessage(payload []byte) (MetadataMessage, error) {
	v, tail, err := bencode.DecodeBytes(payload)
	if err != nil {
		return MetadataMessage{}, fmt.Errorf("decode metadata message: %w", err)
	}
	d, ok := v.Dict()
	if !ok {
		return MetadataMessage{}, fmt.Errorf("metadata message is not a dict")
	}
	msgTypeVal, ok := d["msg_type"]
	if !ok {
		return MetadataMessage{}, fmt.Errorf("metadata message missing 'msg_type'")
	}
	msgType, ok := msgTypeVal.Int()
	if !ok {
		return MetadataMessage{}, fmt.Errorf("metadata message 'msg_type' is not an int")
	}

	msg := MetadataMessage{Type: MetadataMsgType(msgType)}
	if pieceVal, ok := d["piece"]; ok {
		if p, ok := pieceVal.Int(); ok {
			msg.Piece = int(p)
		}
	}

	switch msg.Type {
	case MetadataRequest, MetadataReject:
		return msg, nil
	case MetadataData:
		sizeVal, ok := d["total_size"]
		if !ok {
			return MetadataMessage{}, fmt.Errorf("metadata data message missing 'total_size'")
		}
		size, ok := sizeVal.Int()
		if !ok {
			return MetadataMessage{}, fmt.Errorf("metadata data message 'total_size' is not an int")
		}
		msg.TotalSize = int(size)
		msg.Block = tail
		return msg, nil
	default:
		return MetadataMessage{}, fmt.Errorf("unexpected metadata msg_type %d", msgType)
	}
}
