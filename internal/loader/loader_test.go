package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
	"github.com/cory-johannsen/palworld-lens/internal/scripting"
	"github.com/cory-johannsen/palworld-lens/internal/testutil"
)

const (
	ashUID   = "11111111-0000-0000-0000-000000000001"
	ashInst  = "aaaaaaaa-0000-0000-0000-000000000001"
	mistyUID = "11111111-0000-0000-0000-000000000002"
	catInst  = "bbbbbbbb-0000-0000-0000-000000000001"
	foxInst  = "bbbbbbbb-0000-0000-0000-000000000002"
	guildID  = "99999999-0000-0000-0000-000000000001"
	baseID   = "cccccccc-0000-0000-0000-000000000001"
	workerID = "dddddddd-0000-0000-0000-000000000001"
	partyID  = "dddddddd-0000-0000-0000-000000000002"
)

func newLoader(t *testing.T) *loader.Loader {
	t.Helper()
	root := testutil.RepoRoot(t)
	mgr := scripting.NewManager(zap.NewNop())
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Load(filepath.Join(root, "scripts", "transforms"), 0))
	set, err := schema.Load(filepath.Join(root, "schemas"), schema.NewTransforms(mgr))
	require.NoError(t, err)
	tables, err := gamedata.LoadDir(filepath.Join(root, "gamedata"))
	require.NoError(t, err)
	l, err := loader.New(zaptest.NewLogger(t), set, tables, loader.DefaultOptions())
	require.NoError(t, err)
	return l
}

func ashWorld() testutil.World {
	return testutil.World{
		Players: []testutil.PlayerSpec{{UID: ashUID, InstanceID: ashInst, Name: "Ash", Level: 5, FullStomach: 100, Sanity: 100}},
		Pals: []testutil.PalSpec{{
			InstanceID: catInst, CharacterID: "PinkCat", OwnerUID: ashUID, Level: 3, FullStomach: 150,
		}},
	}
}

func TestLoad_SinglePlayerOwningOnePal(t *testing.T) {
	sd := testutil.NewSaveDir(t, ashWorld(), "Ash's World")
	l := newLoader(t)

	snap, err := l.Load(context.Background(), sd.Dir)
	require.NoError(t, err)

	view := l.Snapshot()
	assert.Equal(t, loader.StateLoaded, view.Status.State)
	assert.Same(t, snap, view.Snapshot)
	require.Len(t, snap.Players, 1)
	require.Len(t, snap.Pals, 1)
	assert.Empty(t, snap.Guilds)
	assert.Equal(t, "Ash's World", snap.WorldName)

	pal := snap.Pals[0]
	assert.Equal(t, "PinkCat", pal.CharacterID)
	assert.Equal(t, ashUID, pal.OwnerUID)
	assert.Equal(t, model.OwnerResolved, pal.OwnerStatus)
	assert.Equal(t, "Ash", pal.OwnerName)
	owner, ok := snap.Player(pal.OwnerUID)
	require.True(t, ok)
	assert.Equal(t, "Ash", owner.Name)
	assert.Equal(t, []*model.Pal{pal}, snap.PalsOwnedBy(ashUID))
}

func TestLoad_FullWorld(t *testing.T) {
	w := testutil.World{
		Players: []testutil.PlayerSpec{{UID: ashUID, InstanceID: ashInst, Name: "Ash", Level: 12}},
		Pals: []testutil.PalSpec{
			{InstanceID: catInst, CharacterID: "PinkCat", ContainerID: workerID, Level: 10},
			{InstanceID: foxInst, CharacterID: "Kitsunebi", ContainerID: partyID, Level: 4},
		},
		Guilds: []gvas.GuildGroup{{
			GroupID:  guildID,
			AdminUID: ashUID,
			Members:  []gvas.GuildMember{{PlayerUID: ashUID, InstanceID: ashInst}},
			BaseIDs:  []string{baseID},
			Players:  []gvas.GuildPlayer{{UID: ashUID, Name: "Ash", LastOnline: 777}},
		}},
		Bases:      []testutil.BaseSpec{{ID: baseID, GuildID: guildID, X: 10, Y: 20, WorkerContainerID: workerID}},
		Containers: []testutil.ContainerSpec{{ID: partyID, InstanceIDs: []string{foxInst}}},
		GroupIDs:   map[string]string{ashInst: guildID},
	}
	save := testutil.PlayerSave{UID: ashUID, InstanceID: ashInst, X: 1, Y: 2, Z: 3, OtomoContainerID: partyID}
	sd := testutil.NewSaveDir(t, w, "World", save)
	l := newLoader(t)

	snap, err := l.Load(context.Background(), sd.Dir)
	require.NoError(t, err)

	ash, ok := snap.Player(ashUID)
	require.True(t, ok)
	assert.Equal(t, guildID, ash.GuildID)
	assert.Equal(t, model.GuildResolved, ash.GuildStatus)
	assert.Equal(t, &model.Location{X: 1, Y: 2, Z: 3}, ash.Location)
	assert.Equal(t, int64(777), ash.LastOnline)

	g, ok := snap.Guild(guildID)
	require.True(t, ok)
	assert.Equal(t, "11111111's Guild (1 members)", g.GuildName)
	assert.Equal(t, []string{ashUID}, g.MemberUIDs)
	require.Len(t, g.BaseLocations, 1)
	assert.Equal(t, "Base 1", g.BaseLocations[0].BaseName)

	cat, ok := snap.Pal(catInst)
	require.True(t, ok)
	assert.Equal(t, baseID, cat.BaseID)
	assert.Equal(t, guildID, cat.GuildID)
	assert.Equal(t, model.OwnerNone, cat.OwnerStatus)

	fox, ok := snap.Pal(foxInst)
	require.True(t, ok)
	assert.Equal(t, ashUID, fox.OwnerUID, "owned through the party container")
	assert.Equal(t, model.OwnerResolved, fox.OwnerStatus)

	assert.Equal(t, []*model.Pal{cat}, snap.Index.BasePals[baseID])
	assert.Equal(t, 1, snap.Stats.PlayerFiles)
	assert.NotEmpty(t, snap.MapPoints)
}

func TestLoad_UnresolvedOwnerAndSkippedFiles(t *testing.T) {
	w := ashWorld()
	w.Pals = append(w.Pals, testutil.PalSpec{InstanceID: foxInst, CharacterID: "Kitsunebi", OwnerUID: mistyUID})
	sd := testutil.NewSaveDir(t, w, "World")
	require.NoError(t, os.MkdirAll(filepath.Join(sd.Dir, "Players"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sd.Dir, "Players", "0123456789ABCDEF0123456789ABCDEF.sav"), []byte("junk"), 0o644))

	snap, err := newLoader(t).Load(context.Background(), sd.Dir)
	require.NoError(t, err)
	fox, ok := snap.Pal(foxInst)
	require.True(t, ok)
	assert.Equal(t, model.OwnerUnresolved, fox.OwnerStatus)
	assert.Equal(t, mistyUID, fox.OwnerUID)
	assert.Equal(t, 1, snap.Stats.UnresolvedOwners)
	assert.Equal(t, 1, snap.Stats.SkippedPlayerFiles)
	assert.Equal(t, []*model.Pal{fox}, snap.Index.Unowned)
}

func TestLoad_DecodeFailureKeepsPreviousSnapshot(t *testing.T) {
	sd := testutil.NewSaveDir(t, ashWorld(), "World")
	l := newLoader(t)
	first, err := l.Load(context.Background(), sd.Dir)
	require.NoError(t, err)

	sd.Corrupt()
	_, err = l.Reload(context.Background())
	require.Error(t, err)
	var de *gvas.DecodeError
	assert.True(t, errors.As(err, &de), "want a DecodeError, got %v", err)

	view := l.Snapshot()
	assert.Equal(t, loader.StateFailed, view.Status.State)
	assert.NotEmpty(t, view.Status.Err)
	assert.Same(t, first, view.Snapshot)

	sd.WriteLevel(ashWorld())
	_, err = l.Reload(context.Background())
	require.NoError(t, err)
	view = l.Snapshot()
	assert.Equal(t, loader.StateLoaded, view.Status.State)
	assert.Empty(t, view.Status.Err)
}

func TestLoad_MissingLevelFails(t *testing.T) {
	l := newLoader(t)
	_, err := l.Load(context.Background(), t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
	view := l.Snapshot()
	assert.Equal(t, loader.StateFailed, view.Status.State)
	assert.Nil(t, view.Snapshot)
}

func entityIDs(s *model.Snapshot) []string {
	var ids []string
	for _, p := range s.Players {
		ids = append(ids, "player:"+p.UID)
	}
	for _, p := range s.Pals {
		ids = append(ids, "pal:"+p.InstanceID+":"+p.OwnerUID)
	}
	for _, g := range s.Guilds {
		ids = append(ids, "guild:"+g.GuildID)
	}
	sort.Strings(ids)
	return ids
}

func TestReload_Idempotent(t *testing.T) {
	sd := testutil.NewSaveDir(t, ashWorld(), "World")
	l := newLoader(t)
	_, err := l.Load(context.Background(), sd.Dir)
	require.NoError(t, err)

	a, err := l.Reload(context.Background())
	require.NoError(t, err)
	b, err := l.Reload(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, entityIDs(a), entityIDs(b))
}

func TestReload_NotConfigured(t *testing.T) {
	_, err := newLoader(t).Reload(context.Background())
	assert.ErrorIs(t, err, loader.ErrNotConfigured)
}

func TestReload_ConcurrentCallsShareOnePass(t *testing.T) {
	sd := testutil.NewSaveDir(t, ashWorld(), "World")
	l := newLoader(t)
	_, err := l.Load(context.Background(), sd.Dir)
	require.NoError(t, err)

	gate := make(chan struct{})
	var mu sync.Mutex
	var passes []uint64
	l.SetBeforeParse(func(seq uint64) {
		mu.Lock()
		passes = append(passes, seq)
		mu.Unlock()
		<-gate
	})

	const callers = 5
	results := make(chan *model.Snapshot, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := l.Reload(context.Background())
			assert.NoError(t, err)
			results <- snap
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(results)

	var first *model.Snapshot
	for snap := range results {
		if first == nil {
			first = snap
		}
		assert.Same(t, first, snap)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2}, passes)
}

func TestLoad_NewerRequestSupersedesOlder(t *testing.T) {
	older := testutil.NewSaveDir(t, ashWorld(), "Older")
	newer := testutil.NewSaveDir(t, ashWorld(), "Newer")
	l := newLoader(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	l.SetBeforeParse(func(seq uint64) {
		if seq == 1 {
			close(entered)
			<-release
		}
	})

	var transitions []loader.Event
	var mu sync.Mutex
	l.OnTransition(func(ev loader.Event) {
		mu.Lock()
		transitions = append(transitions, ev)
		mu.Unlock()
	})

	errc := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), older.Dir)
		errc <- err
	}()
	<-entered

	snap, err := l.Load(context.Background(), newer.Dir)
	require.NoError(t, err)
	assert.Equal(t, "Newer", snap.WorldName)

	close(release)
	assert.ErrorIs(t, <-errc, loader.ErrSuperseded)

	view := l.Snapshot()
	assert.Equal(t, loader.StateLoaded, view.Status.State)
	assert.Equal(t, "Newer", view.Snapshot.WorldName)
	assert.Equal(t, uint64(2), view.Status.Seq)

	mu.Lock()
	defer mu.Unlock()
	var loaded int
	for _, ev := range transitions {
		if ev.To == loader.StateLoaded {
			loaded++
			assert.Equal(t, uint64(2), ev.Seq)
		}
	}
	assert.Equal(t, 1, loaded)
}

func TestNew_RequiresCoreSchemas(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pal.yaml"), []byte("kind: pal\nfields: [{target: level, source: Level}]"), 0o644))
	set, err := schema.Load(dir, schema.NewTransforms(nil))
	require.NoError(t, err)
	_, err = loader.New(zap.NewNop(), set, gamedata.NewTables(), loader.DefaultOptions())
	var se *schema.SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestOnTransition_StaleEventsDropped(t *testing.T) {
	l := newLoader(t)
	var seen []loader.Event
	l.OnTransition(func(ev loader.Event) { seen = append(seen, ev) })

	newer := (&model.Snapshot{WorldName: "Newer"}).Seal()
	older := (&model.Snapshot{WorldName: "Older"}).Seal()

	l.Deliver(loader.Event{From: loader.StateLoaded, To: loader.StateLoading, Seq: 3})
	l.Deliver(loader.Event{From: loader.StateLoading, To: loader.StateLoaded, Seq: 3, Snapshot: newer})
	// A slower pass finishing late must not overwrite what listeners saw last.
	l.Deliver(loader.Event{From: loader.StateLoading, To: loader.StateLoaded, Seq: 2, Snapshot: older})
	l.Deliver(loader.Event{From: loader.StateLoaded, To: loader.StateLoading, Seq: 4})

	require.Len(t, seen, 3)
	assert.Equal(t, []uint64{3, 3, 4}, []uint64{seen[0].Seq, seen[1].Seq, seen[2].Seq})
	assert.Equal(t, "Newer", seen[1].Snapshot.WorldName)
}
