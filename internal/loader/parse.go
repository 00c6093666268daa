package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/palworld-lens/internal/build"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/relate"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
)

// decoded is the output of the decode stage.
type decoded struct {
	level     *gvas.File
	meta      *gvas.File
	players   map[string]*gvas.File // keyed by file uid
	playerErr int
}

// extracted is the output of the extract stage.
type extracted struct {
	characters []schema.Record
	guilds     []schema.Record
	bases      []schema.Record
	containers []schema.Record
	mapObjects []schema.Record
	saves      map[string]schema.Attrs // keyed by file uid
	worldName  string
}

// stage runs fn inside a span named after the stage.
func (l *Loader) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := l.tracer.Start(ctx, "loader."+name)
	defer span.End()
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// parse runs decode, extract, build and resolve over dir.
func (l *Loader) parse(ctx context.Context, dir string) (*model.Snapshot, error) {
	ctx, span := l.tracer.Start(ctx, "loader.parse")
	defer span.End()
	span.SetAttributes(attribute.String("save.dir", dir))

	var (
		dec  decoded
		ext  extracted
		snap *model.Snapshot
		in   relate.Input
	)
	err := l.stage(ctx, "decode", func(ctx context.Context) error {
		var err error
		dec, err = l.decode(ctx, dir)
		return err
	})
	if err == nil {
		err = l.stage(ctx, "extract", func(context.Context) error {
			ext = l.extract(dec)
			return nil
		})
	}
	if err == nil {
		err = l.stage(ctx, "build", func(context.Context) error {
			snap, in = l.build(ext)
			snap.Stats.PlayerFiles = len(dec.players)
			snap.Stats.SkippedPlayerFiles += dec.playerErr
			return nil
		})
	}
	if err == nil {
		err = l.stage(ctx, "resolve", func(context.Context) error {
			snap.Index = relate.Resolve(in)
			snap.Stats.UnresolvedOwners = len(snap.Index.Unowned)
			return nil
		})
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	snap.LoadedAt = l.opts.Now()
	return snap.Seal(), nil
}

func (l *Loader) decodeFile(ctx context.Context, path string) (*gvas.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := gvas.DecodeSave(ctx, data, l.opts.Decode)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// decode reads Level.sav (required), LevelMeta.sav and Players/*.sav
// (optional). Player files that fail to decode are skipped.
func (l *Loader) decode(ctx context.Context, dir string) (decoded, error) {
	out := decoded{players: make(map[string]*gvas.File)}
	level, err := l.decodeFile(ctx, filepath.Join(dir, l.opts.LevelFile))
	if err != nil {
		return out, err
	}
	out.level = level

	if meta, err := l.decodeFile(ctx, filepath.Join(dir, l.opts.MetaFile)); err == nil {
		out.meta = meta
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("skipping world metadata", zap.Error(err))
	}

	entries, err := os.ReadDir(filepath.Join(dir, l.opts.PlayersDir))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("reading player saves", zap.Error(err))
		}
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.PlayerWorkers)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sav") {
			continue
		}
		uid, ok := build.FileUID(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, l.opts.PlayersDir, e.Name())
		g.Go(func() error {
			f, err := l.decodeFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn("skipping player save", zap.String("file", filepath.Base(path)), zap.Error(err))
				mu.Lock()
				out.playerErr++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			out.players[uid] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (l *Loader) collect(kind string, root *gvas.File) []schema.Record {
	es, ok := l.schemas.Schema(kind)
	if !ok || root == nil {
		return nil
	}
	return es.Collect(root.Properties)
}

func (l *Loader) extract(dec decoded) extracted {
	ext := extracted{
		characters: l.collect(schema.KindCharacter, dec.level),
		guilds:     l.collect(schema.KindGuild, dec.level),
		bases:      l.collect(schema.KindBase, dec.level),
		containers: l.collect(schema.KindContainer, dec.level),
		mapObjects: l.collect(schema.KindMapObject, dec.level),
		saves:      make(map[string]schema.Attrs, len(dec.players)),
	}
	if es, ok := l.schemas.Schema(schema.KindPlayerSave); ok {
		for uid, f := range dec.players {
			ext.saves[uid] = es.Extract(f.Properties, nil)
		}
	}
	if es, ok := l.schemas.Schema(schema.KindWorldMeta); ok && dec.meta != nil {
		ext.worldName = es.Extract(dec.meta.Properties, nil).String("worldName")
	}
	return ext
}

// build turns records into entities. Records missing a required identity are
// skipped and counted.
func (l *Loader) build(ext extracted) (*model.Snapshot, relate.Input) {
	snap := &model.Snapshot{
		WorldName:  ext.worldName,
		Players:    []*model.Player{},
		Pals:       []*model.Pal{},
		Guilds:     []*model.Guild{},
		Bases:      []*model.Base{},
		MapObjects: []*model.MapObject{},
		MapPoints:  build.MapPoints(l.tables),
	}
	in := relate.Input{
		Containers:      make(map[string][]string, len(ext.containers)),
		CharacterGroups: make(map[string]string),
	}

	saves := make(map[string]*build.PlayerSave, len(ext.saves))
	saveByInstance := make(map[string]*build.PlayerSave, len(ext.saves))
	uids := make([]string, 0, len(ext.saves))
	for uid := range ext.saves {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	for _, uid := range uids {
		ps, err := build.BuildPlayerSave(ext.saves[uid], uid)
		if err != nil {
			l.logger.Debug("skipping player save record", zap.String("uid", uid), zap.Error(err))
			snap.Stats.SkippedPlayerFiles++
			continue
		}
		saves[ps.UID] = ps
		saveByInstance[ps.InstanceID] = ps
	}

	playerSchema, _ := l.schemas.Schema(schema.KindPlayer)
	palSchema, _ := l.schemas.Schema(schema.KindPal)
	seenPlayers := make(map[string]bool)
	seenPals := make(map[string]bool)
	for _, rec := range ext.characters {
		snap.Stats.Characters++
		char := rec.Attrs
		if g := char.String("groupId"); g != "" {
			in.CharacterGroups[char.String("instanceId")] = g
		}
		if char.Bool("isPlayer") {
			save := saves[char.String("playerUid")]
			if save == nil {
				save = saveByInstance[char.String("instanceId")]
			}
			p, err := build.BuildPlayer(char, playerSchema.Extract(rec.Node, rec.Entry), save)
			if err != nil || seenPlayers[p.UID] {
				l.skip("player", rec.Key, err)
				snap.Stats.SkippedCharacters++
				continue
			}
			seenPlayers[p.UID] = true
			snap.Players = append(snap.Players, p)
			continue
		}
		p, err := build.BuildPal(char, palSchema.Extract(rec.Node, rec.Entry), l.tables)
		if err != nil || seenPals[p.InstanceID] {
			l.skip("pal", rec.Key, err)
			snap.Stats.SkippedCharacters++
			continue
		}
		seenPals[p.InstanceID] = true
		snap.Pals = append(snap.Pals, p)
	}

	for _, rec := range ext.guilds {
		g, err := build.BuildGuild(rec.Attrs)
		if err != nil {
			l.skip("guild", rec.Key, err)
			snap.Stats.SkippedGuilds++
			continue
		}
		snap.Guilds = append(snap.Guilds, g)
	}
	for _, rec := range ext.bases {
		b, err := build.BuildBase(rec.Attrs)
		if err != nil {
			l.skip("base", rec.Key, err)
			continue
		}
		snap.Bases = append(snap.Bases, b)
	}
	for _, rec := range ext.containers {
		if id := rec.Attrs.String("containerId"); id != "" {
			in.Containers[id] = rec.Attrs.Strings("instanceIds")
		}
	}
	for _, rec := range ext.mapObjects {
		m, err := build.BuildMapObject(rec.Attrs)
		if err != nil {
			l.skip("map object", rec.Key, err)
			continue
		}
		snap.MapObjects = append(snap.MapObjects, m)
	}

	in.Players = snap.Players
	in.Pals = snap.Pals
	in.Guilds = snap.Guilds
	in.Bases = snap.Bases
	return snap, in
}

func (l *Loader) skip(entity, key string, err error) {
	if err == nil {
		err = errors.New("duplicate id")
	}
	l.logger.Debug("skipping record", zap.String("entity", entity), zap.String("key", key), zap.Error(err))
}
