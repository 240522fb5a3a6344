// Package session drives one peer-wire TCP connection from handshake
// through piece exchange: the state machine, the read/write loop pair, and
// (when metainfo is not yet known) the ut_metadata reconstruction loop.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/config"
	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/errs"
	"github.com/ivanjermakov/biter/filewriter"
	"github.com/ivanjermakov/biter/store"
	"github.com/ivanjermakov/biter/wire"
)

// utMetadataLocalID is the sub-id this client assigns itself for
// ut_metadata in its own outgoing extension handshake -- the only
// extension it supports, so it is always 1.
const utMetadataLocalID uint8 = 1

// Session owns one peer connection for the lifetime of its read/write loop
// pair. It holds a handle to the shared store but never owns peer state
// itself -- every mutation goes through the store's locked accessors.
type Session struct {
	conn     net.Conn
	peer     core.PeerInfo
	st       *store.Store
	cfg      config.Config
	clk      clock.Clock
	logger   *zap.SugaredLogger
	magnetID *core.InfoHash     // set only when this run started from a magnet link
	writer   *filewriter.Writer // nil in tests that never expect a piece to be saved to disk

	done   chan struct{}
	closed *atomic.Bool // CAS-guarded so close() runs its body exactly once

	remoteExtensionIDs map[string]uint8 // name -> id to use when WE send to this peer
	metainfo           *metainfoState    // non-nil only while driving C8
}

// New constructs a Session for an already-discovered peer. magnetID is
// non-nil when the torrent was started from a magnet link and metainfo may
// still need to be reconstructed via C8.
func New(peer core.PeerInfo, st *store.Store, cfg config.Config, clk clock.Clock, logger *zap.SugaredLogger, magnetID *core.InfoHash) *Session {
	return &Session{
		peer:               peer,
		st:                 st,
		cfg:                cfg,
		clk:                clk,
		logger:             logger.With("peer", peer.Addr()),
		magnetID:           magnetID,
		done:               make(chan struct{}),
		closed:             atomic.NewBool(false),
		remoteExtensionIDs: make(map[string]uint8),
	}
}

// SetWriter attaches the shared file writer (C9) this session dispatches a
// piece to once it verifies. A session constructed without one (as in tests
// that only assert on store state) simply never saves pieces to disk.
func (s *Session) SetWriter(w *filewriter.Writer) {
	s.writer = w
}

// Run connects, handshakes, and drives the session to completion or error.
// It blocks until the session's read/write loop pair has fully unwound,
// leaving the peer's store status at Disconnected or Done.
func (s *Session) Run(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		s.st.SetPeerStatus(s.peer, store.PeerDisconnected)
		return fmt.Errorf("connect: %w", err)
	}
	s.conn = conn
	defer s.conn.Close()

	s.st.SetPeerStatus(s.peer, store.PeerConnected)

	if s.st.Status() == store.StatusMetainfo {
		s.metainfo = newMetainfoState()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.readLoop()
	}()
	go func() {
		defer wg.Done()
		errs <- s.writeLoop(ctx)
	}()

	firstErr := <-errs
	s.close()
	wg.Wait()

	if firstErr != nil {
		s.st.SetPeerStatus(s.peer, store.PeerDisconnected)
		return firstErr
	}
	s.st.SetPeerStatus(s.peer, store.PeerDone)
	return nil
}

func (s *Session) close() {
	if !s.closed.CAS(false, true) {
		return
	}
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
}

// IsClosed reports whether this session's read/write pair has already
// unwound.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.PeerConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", s.peer.Addr())
	if err != nil {
		return nil, &errs.NetworkError{Op: "dial", Target: s.peer.Addr(), Err: err}
	}

	_ = conn.SetDeadline(time.Now().Add(s.cfg.PeerConnectTimeout))
	if err := wire.WriteHandshake(conn, wire.Handshake{
		Reserved: wire.NewReserved(wire.FeatureExtension),
		InfoHash: s.st.InfoHash(),
		PeerID:   s.st.PeerID(),
	}); err != nil {
		conn.Close()
		return nil, &errs.NetworkError{Op: "write handshake", Target: s.peer.Addr(), Err: err}
	}

	reply, err := wire.ReadHandshake(conn)
	if err != nil {
		conn.Close()
		return nil, &errs.NetworkError{Op: "read handshake", Target: s.peer.Addr(), Err: err}
	}
	if !reply.InfoHash.Equal(s.st.InfoHash()) {
		conn.Close()
		return nil, &errs.ProtocolError{
			Peer:   s.peer.Addr(),
			Reason: fmt.Sprintf("handshake info-hash mismatch: got %s, want %s", reply.InfoHash, s.st.InfoHash()),
		}
	}
	_ = conn.SetDeadline(time.Time{})

	if wire.FeatureExtension.Enabled(reply.Reserved) {
		if err := wire.WriteMessage(conn, wire.ExtendedMessage(
			wire.ExtHandshakeID, wire.EncodeExtHandshake(wire.UTMetadataExtension),
		)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("write extension handshake: %w", err)
		}
	}

	// §4.7: Connected -- send Interested --> interested=true. Without this
	// a well-behaved peer never unchokes us, and the write loop sleeps on
	// choke forever.
	if err := wire.WriteMessage(conn, wire.InterestedMessage()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write interested: %w", err)
	}
	s.st.SetPeerInterested(s.peer, true)

	return conn, nil
}

func (s *Session) readLoop() error {
	for {
		select {
		case <-s.done:
			return nil
		default:
		}
		msg, err := wire.ReadMessage(s.conn)
		if err != nil {
			return &errs.ProtocolError{Peer: s.peer.Addr(), Reason: fmt.Sprintf("read message: %s", err)}
		}
		if err := s.dispatch(msg); err != nil {
			s.logger.Debugw("dispatch error", "error", err)
		}
	}
}

func (s *Session) dispatch(msg wire.Message) error {
	switch msg.ID {
	case wire.IDChoke:
		s.st.SetPeerChoked(s.peer, true)
	case wire.IDUnchoke:
		s.st.SetPeerChoked(s.peer, false)
	case wire.IDHave:
		s.st.SetPeerHavePiece(s.peer, int(msg.PieceIndex))
	case wire.IDBitfield:
		if info := s.st.Info(); info != nil {
			s.st.SetPeerBitfield(s.peer, wire.DecodeBitfield(msg.Bitfield, info.NumPieces()))
		}
	case wire.IDPort:
		s.st.SetPeerDHTPort(s.peer, int(msg.Port))
	case wire.IDPiece:
		result := s.st.AdmitBlock(int(msg.PieceIndex), msg.Begin, msg.Block)
		switch result {
		case store.BlockCompletedVerified:
			s.logger.Infow("piece verified", "piece", msg.PieceIndex)
			s.saveToDisk(int(msg.PieceIndex))
		case store.BlockCompletedMismatch:
			err := &errs.IntegrityError{PieceIndex: int(msg.PieceIndex)}
			s.logger.Warnw("discarding blocks and re-entering piece into download", "error", err)
		case store.BlockRejected:
			s.logger.Debugw("block rejected", "piece", msg.PieceIndex, "begin", msg.Begin)
		}
	case wire.IDExtended:
		return s.dispatchExtended(msg)
	default:
		// KeepAlive, Interested, NotInterested, Request, Cancel: accepted,
		// no state change required by this client.
	}
	return nil
}

// saveToDisk dispatches a just-verified piece to the file writer (C9) and
// advances it to Saved on success. A write failure is only logged: the
// error is not passed on to the supervisor, and since MarkSaved is only
// called on success the piece stays at Downloaded, so the supervisor's wait
// for every piece to be Saved ends only when its context is cancelled.
func (s *Session) saveToDisk(pieceIndex int) {
	if s.writer == nil {
		return
	}
	info := s.st.Info()
	if info == nil {
		return
	}
	data, locations, ok := s.st.PieceForWrite(pieceIndex)
	if !ok {
		return
	}
	if err := s.writer.Write(info.Name, info.Files, data, locations); err != nil {
		s.logger.Errorw("write piece to disk failed", "piece", pieceIndex, "error", err)
		return
	}
	s.st.MarkSaved(pieceIndex)
}

func (s *Session) dispatchExtended(msg wire.Message) error {
	if msg.ExtID == wire.ExtHandshakeID {
		hs, err := wire.DecodeExtHandshake(msg.ExtData)
		if err != nil {
			return fmt.Errorf("decode extension handshake: %w", err)
		}
		ids := make(map[string]uint8, len(hs.M))
		for name, id := range hs.M {
			ids[string(name)] = id
			s.remoteExtensionIDs[string(name)] = id
		}
		s.st.SetPeerExtensionIDs(s.peer, ids)
		return nil
	}

	if msg.ExtID == utMetadataLocalID && s.metainfo != nil {
		return s.handleMetadataMessage(msg.ExtData)
	}
	return nil
}

func (s *Session) handleMetadataMessage(payload []byte) error {
	metaMsg, err := wire.DecodeMetadataMessage(payload)
	if err != nil {
		return fmt.Errorf("decode metadata message: %w", err)
	}
	if metaMsg.Type != wire.MetadataData {
		return nil
	}
	s.metainfo.addData(metaMsg.Piece, metaMsg.TotalSize, metaMsg.Block)
	if !s.metainfo.complete() {
		return nil
	}
	if s.magnetID == nil {
		return fmt.Errorf("metadata complete but no target info-hash to verify against")
	}
	mi, err := s.metainfo.verifyAndBuild(*s.magnetID)
	if err != nil {
		s.logger.Warnw("metadata verification failed, restarting", "error", err)
		s.metainfo = newMetainfoState()
		return nil
	}
	if err := s.st.SetInfo(mi.Info); err != nil {
		return fmt.Errorf("install reconstructed metainfo: %w", err)
	}
	s.metainfo = nil
	return nil
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.cfg.RespectsChoke() && s.peerChoked() {
			if !s.sleep(s.cfg.ChokeWait) {
				return nil
			}
			continue
		}

		if s.metainfo != nil {
			if done, err := s.writeMetadataRequest(); err != nil {
				return err
			} else if done {
				continue
			}
		} else {
			piece := s.st.NextPiece()
			if piece == nil {
				return nil
			}
			if err := s.requestMissingBlocks(piece.Index); err != nil {
				return err
			}
		}

		if !s.sleep(s.cfg.PieceRequestWait) {
			return nil
		}
	}
}

func (s *Session) peerChoked() bool {
	for _, p := range s.st.PeersByStatus(store.PeerConnected) {
		if p.Info == s.peer {
			return p.Choked
		}
	}
	return true
}

func (s *Session) sleep(d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-s.clk.After(d):
		return true
	}
}

func (s *Session) writeMetadataRequest() (done bool, err error) {
	piece := s.metainfo.nextPiece()
	if piece < 0 {
		return true, nil
	}
	extID, ok := s.remoteExtensionIDs[string(wire.UTMetadataExtension)]
	if !ok {
		return false, fmt.Errorf("peer does not support ut_metadata")
	}
	req := wire.EncodeMetadataRequest(piece)
	if err := wire.WriteMessage(s.conn, wire.ExtendedMessage(extID, req)); err != nil {
		return false, fmt.Errorf("write metadata request: %w", err)
	}
	return false, nil
}

func (s *Session) requestMissingBlocks(pieceIndex int) error {
	for _, blockIndex := range s.st.MissingBlocks(pieceIndex) {
		begin := uint32(blockIndex) * store.BlockSize
		length := s.st.BlockLength(pieceIndex, blockIndex)
		if err := wire.WriteMessage(s.conn, wire.RequestMessage(uint32(pieceIndex), begin, uint32(length))); err != nil {
			return fmt.Errorf("write request: %w", err)
		}
	}
	return nil
}
