package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/config"
	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/identity"
	"github.com/ivanjermakov/biter/torlib"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger.Sugar()
}

func testTarget() Target {
	info := torlib.NewInfoFixture("movie", 8, 16)
	mi := torlib.NewMetaInfoFixture(info)
	mi.Announce = ""
	mi.AnnounceList = nil
	return Target{MetaInfo: mi}
}

func TestNewRejectsAmbiguousTarget(t *testing.T) {
	cfg := config.Config{StateFilePath: filepath.Join(t.TempDir(), "state.json")}
	cfg.ApplyDefaults()

	_, err := New(cfg, Target{}, testLogger(t), nil, clock.New())
	require.Error(t, err)

	info := torlib.NewInfoFixture("movie", 8, 16)
	mi := torlib.NewMetaInfoFixture(info)
	magnet := &torlib.Magnet{InfoHash: mi.InfoHash}
	_, err = New(cfg, Target{MetaInfo: mi, Magnet: magnet}, testLogger(t), nil, clock.New())
	require.Error(t, err)
}

func TestNewGeneratesPeerIDWhenStateAbsent(t *testing.T) {
	cfg := config.Config{StateFilePath: filepath.Join(t.TempDir(), "state.json")}
	cfg.ApplyDefaults()

	sp, err := New(cfg, testTarget(), testLogger(t), nil, clock.New())
	require.NoError(t, err)
	require.NotEqual(t, core.PeerID{}, sp.selfID)
}

func TestNewReusesPersistedPeerID(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	id, err := core.GenerateAzureusPeerID()
	require.NoError(t, err)
	require.NoError(t, identity.Save(statePath, identity.State{}.WithPeerID(id)))

	cfg := config.Config{StateFilePath: statePath}
	cfg.ApplyDefaults()

	sp, err := New(cfg, testTarget(), testLogger(t), nil, clock.New())
	require.NoError(t, err)
	require.Equal(t, id, sp.selfID)
}

// A run with no trackers and no peers never completes; once cancelled it
// must still persist identity state on the way out.
func TestRunPersistsIdentityOnIncompleteRun(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := config.Config{
		StateFilePath:       statePath,
		DownloadRoot:        t.TempDir(),
		DownloadedCheckWait: 5 * time.Millisecond,
		ReconnectWait:       5 * time.Millisecond,
	}
	cfg.ApplyDefaults()

	sp, err := New(cfg, testTarget(), testLogger(t), nil, clock.New())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	runErr := sp.Run(ctx)
	require.Error(t, runErr)

	_, statErr := os.Stat(statePath)
	require.NoError(t, statErr)

	loaded, err := identity.Load(statePath)
	require.NoError(t, err)
	gotID, ok := loaded.PeerID()
	require.True(t, ok)
	require.Equal(t, sp.selfID, gotID)
}

func TestParsePeerAddrsSkipsInvalid(t *testing.T) {
	out := parsePeerAddrs([]string{"1.2.3.4:6881", "not-an-addr", "5.6.7.8:notaport"})
	require.Equal(t, []core.PeerInfo{core.NewPeerInfo("1.2.3.4", 6881)}, out)
}

func TestFirstURL(t *testing.T) {
	require.Equal(t, "", firstURL(nil))
	require.Equal(t, "http://a", firstURL(torlib.AnnounceList{{}, {"http://a", "http://b"}}))
}
