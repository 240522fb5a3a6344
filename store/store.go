package store

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/torlib"
)

// Status is the run's overall phase. Metainfo only applies when the torrent
// was started from a magnet link and C8 has not yet reconstructed the info
// dict.
type Status int

const (
	StatusMetainfo Status = iota
	StatusDownloading
	StatusDownloaded
)

func (s Status) String() string {
	switch s {
	case StatusMetainfo:
		return "metainfo"
	case StatusDownloading:
		return "downloading"
	case StatusDownloaded:
		return "downloaded"
	default:
		return "unknown"
	}
}

// Store is the single shared record described by the data model: pieces,
// peers, and run status, guarded by one mutex. Every method that does more
// than a field read/write takes the lock for the shortest span that touches
// shared fields, then releases it before doing I/O or logging -- there is no
// per-piece or per-peer lock anywhere in this client.
type Store struct {
	mu sync.Mutex

	infoHash core.InfoHash
	peerID   core.PeerID
	info     *torlib.Info // nil while Status == StatusMetainfo
	pieces   []*Piece      // nil until info is known
	peers    map[string]*Peer

	status Status

	logger *zap.SugaredLogger
	stats  tally.Scope
}

// New constructs a Store for infoHash/peerID. If info is non-nil the piece
// table is initialised immediately and status starts at Downloading;
// otherwise the store starts in the Metainfo phase and SetInfo must be
// called once C8 reconstructs it.
func New(infoHash core.InfoHash, peerID core.PeerID, info *torlib.Info, logger *zap.SugaredLogger, stats tally.Scope) (*Store, error) {
	s := &Store{
		infoHash: infoHash,
		peerID:   peerID,
		peers:    make(map[string]*Peer),
		status:   StatusMetainfo,
		logger:   logger,
		stats:    stats,
	}
	if info != nil {
		if err := s.SetInfo(*info); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) InfoHash() core.InfoHash { return s.infoHash }
func (s *Store) PeerID() core.PeerID     { return s.peerID }

// SetInfo installs the metainfo (reconstructed by C8, or parsed up front)
// and initialises the piece table, transitioning Metainfo -> Downloading.
func (s *Store) SetInfo(info torlib.Info) error {
	pieces, err := newPieceTable(info)
	if err != nil {
		return fmt.Errorf("build piece table: %w", err)
	}

	// Pieces that map to zero files lie wholly past the last file's end, so
	// they form a tail of the table; dropping them keeps every index intact.
	dropped := 0
	for len(pieces) > 0 && len(pieces[len(pieces)-1].Files) == 0 {
		pieces = pieces[:len(pieces)-1]
		dropped++
	}

	s.mu.Lock()
	s.info = &info
	s.pieces = pieces
	s.status = StatusDownloading
	s.mu.Unlock()

	if dropped > 0 && s.logger != nil {
		s.logger.Warnw("pieces map to zero files, dropping", "count", dropped)
	}
	if s.stats != nil {
		s.stats.Gauge("pieces.total").Update(float64(len(pieces)))
	}
	return nil
}

// Info returns the current metainfo, or nil if still in the Metainfo phase.
func (s *Store) Info() *torlib.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Status returns the run's current phase.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AllSaved reports whether every piece has reached Saved status, the
// supervisor's termination condition.
func (s *Store) AllSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pieces == nil {
		return false
	}
	for _, p := range s.pieces {
		if p.Status != PieceSaved {
			return false
		}
	}
	return true
}

// MarkDownloaded transitions the overall status once every piece has
// reached at least Downloaded; it is idempotent and safe to call
// repeatedly from a polling loop.
func (s *Store) MarkDownloaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDownloading {
		return
	}
	for _, p := range s.pieces {
		if p.Status == PieceDownloading {
			return
		}
	}
	s.status = StatusDownloaded
}

// NextPiece returns one Piece uniformly at random among those still
// Downloading, or nil if none remain. Randomised (not rarest-first)
// selection biases the swarm toward piece diversity, per the design notes.
func (s *Store) NextPiece() *Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*Piece
	for _, p := range s.pieces {
		if p.Status == PieceDownloading {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}

// MissingBlocks returns the block indices of p not yet received, snapshot
// under the lock so the caller can issue Request messages without holding
// it.
func (s *Store) MissingBlocks(pieceIndex int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pieceIndex < 0 || pieceIndex >= len(s.pieces) {
		return nil
	}
	p := s.pieces[pieceIndex]
	var missing []int
	for i := 0; i < p.NumBlocks(); i++ {
		if _, ok := p.Blocks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// AdmitBlockResult reports the outcome of AdmitBlock, so callers (C7) can
// decide whether to dispatch the file writer or log a rejection.
type AdmitBlockResult int

const (
	BlockRejected AdmitBlockResult = iota
	BlockAccepted
	BlockDuplicate
	BlockCompletedVerified
	BlockCompletedMismatch
)

// AdmitBlock applies the block-admission rules from the design: reject
// malformed or out-of-phase blocks, treat a duplicate as a loss (not an
// error), and on completing a piece either advance it to Downloaded (hash
// match) or discard all its blocks and leave it Downloading (mismatch).
func (s *Store) AdmitBlock(pieceIndex int, begin uint32, block []byte) AdmitBlockResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pieces == nil || pieceIndex < 0 || pieceIndex >= len(s.pieces) {
		return BlockRejected
	}
	p := s.pieces[pieceIndex]
	if p.Status != PieceDownloading {
		return BlockRejected
	}
	if begin%BlockSize != 0 {
		return BlockRejected
	}
	blockIndex := int(begin / BlockSize)
	if blockIndex < 0 || blockIndex >= p.NumBlocks() {
		return BlockRejected
	}
	if int64(len(block)) != p.BlockLength(blockIndex) {
		return BlockRejected
	}
	if _, exists := p.Blocks[blockIndex]; exists {
		return BlockDuplicate
	}

	p.Blocks[blockIndex] = block
	if !p.complete() {
		return BlockAccepted
	}

	if p.verify() {
		p.Status = PieceDownloaded
		return BlockCompletedVerified
	}
	p.Blocks = make(map[int][]byte)
	return BlockCompletedMismatch
}

// BlockLength returns the expected length of block blockIndex within piece
// pieceIndex, or 0 if either index is out of range.
func (s *Store) BlockLength(pieceIndex, blockIndex int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pieceIndex < 0 || pieceIndex >= len(s.pieces) {
		return 0
	}
	p := s.pieces[pieceIndex]
	if blockIndex < 0 || blockIndex >= p.NumBlocks() {
		return 0
	}
	return p.BlockLength(blockIndex)
}

// PieceForWrite snapshots a Downloaded piece's assembled bytes and file
// locations for the file writer, without holding the lock during I/O.
func (s *Store) PieceForWrite(pieceIndex int) (data []byte, locations []FileLocation, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pieceIndex < 0 || pieceIndex >= len(s.pieces) {
		return nil, nil, false
	}
	p := s.pieces[pieceIndex]
	if p.Status != PieceDownloaded {
		return nil, nil, false
	}
	return p.assemble(), p.Files, true
}

// MarkSaved advances a piece to Saved and clears its in-memory blocks, the
// final step of the file writer's success path.
func (s *Store) MarkSaved(pieceIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pieceIndex < 0 || pieceIndex >= len(s.pieces) {
		return
	}
	p := s.pieces[pieceIndex]
	p.Status = PieceSaved
	p.Blocks = nil
	if s.stats != nil {
		s.stats.Counter("pieces.saved").Inc(1)
	}
}

// MergePeers inserts newly discovered peers (tracker or DHT), never
// dropping or downgrading an existing peer's status.
func (s *Store) MergePeers(infos []core.PeerInfo) (added int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		key := info.Addr()
		if _, ok := s.peers[key]; ok {
			continue
		}
		s.peers[key] = newPeer(info)
		added++
	}
	if s.stats != nil && added > 0 {
		s.stats.Gauge("peers.known").Update(float64(len(s.peers)))
	}
	return added
}

// PeersByStatus snapshots every peer currently at status.
func (s *Store) PeersByStatus(status PeerStatus) []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Peer
	for _, p := range s.peers {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// SetPeerStatus updates a peer's connection status, keyed by its address.
func (s *Store) SetPeerStatus(info core.PeerInfo, status PeerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		p.Status = status
	}
}

// SetPeerChoked updates whether the peer is choking us.
func (s *Store) SetPeerChoked(info core.PeerInfo, choked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		p.Choked = choked
	}
}

// SetPeerInterested updates whether we have declared ourselves interested
// in the peer, set once the session sends its Interested message per the
// §4.7 state machine.
func (s *Store) SetPeerInterested(info core.PeerInfo, interested bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		p.Interested = interested
	}
}

// SetPeerBitfield records the full piece set a peer announced via its
// initial Bitfield message.
func (s *Store) SetPeerBitfield(info core.PeerInfo, have *bitset.BitSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		p.Bitfield = have
	}
}

// SetPeerHavePiece records a single piece announced via a Have message,
// lazily allocating the peer's bitfield (sized from the current piece
// table) if the peer never sent an initial Bitfield message.
func (s *Store) SetPeerHavePiece(info core.PeerInfo, pieceIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[info.Addr()]
	if !ok || pieceIndex < 0 {
		return
	}
	if p.Bitfield == nil {
		if s.pieces == nil {
			return
		}
		p.Bitfield = bitset.New(uint(len(s.pieces)))
	}
	p.Bitfield.Set(uint(pieceIndex))
}

// SetPeerDHTPort records a peer's advertised DHT port from a Port message.
func (s *Store) SetPeerDHTPort(info core.PeerInfo, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		p.DHTPort = &port
	}
}

// SetPeerExtensionIDs records the sub-extension ids a peer's extension
// handshake assigned, keyed by extension name.
func (s *Store) SetPeerExtensionIDs(info core.PeerInfo, m map[string]uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[info.Addr()]; ok {
		for name, id := range m {
			p.ExtensionID[name] = id
		}
	}
}

// DHTSeedPeers returns the PeerInfo of every peer that has advertised a DHT
// port, for seeding the DHT resolver's node queue.
func (s *Store) DHTSeedPeers() []core.PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PeerInfo
	for _, p := range s.peers {
		if p.DHTPort != nil {
			out = append(out, core.NewPeerInfo(p.Info.IP, *p.DHTPort))
		}
	}
	return out
}
