package ingest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

const (
	usersFile    = "users.json"
	channelsFile = "channels.json"
)

// ImportSummary totals one bulk import.
type ImportSummary struct {
	Users       int
	Channels    int
	Files       int
	Messages    int
	Replies     int
	Duplicates  int
	Orphaned    int
	Invalid     int
	PagesClosed int
	// Skipped lists export directories that match no known channel.
	Skipped []string
}

func (s *ImportSummary) add(o ImportSummary) {
	s.Files += o.Files
	s.Messages += o.Messages
	s.Replies += o.Replies
	s.Duplicates += o.Duplicates
	s.Orphaned += o.Orphaned
	s.Invalid += o.Invalid
	s.PagesClosed += o.PagesClosed
}

// Importer loads a Slack workspace export into the archive.
type Importer struct {
	engine  *timeline.Engine
	store   database.Store
	log     zerolog.Logger
	workers int
}

// NewImporter creates an Importer processing up to workers channels at once.
func NewImporter(engine *timeline.Engine, store database.Store, log zerolog.Logger, workers int) *Importer {
	if workers < 1 {
		workers = 1
	}
	return &Importer{
		engine:  engine,
		store:   store,
		log:     log.With().Str("component", "importer").Logger(),
		workers: workers,
	}
}

// ImportFile imports the export zip at path.
func (im *Importer) ImportFile(ctx context.Context, zipPath string) (ImportSummary, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("failed to open export %s: %w", zipPath, err)
	}
	defer zr.Close()

	return im.Import(ctx, &zr.Reader)
}

// Import reads users.json and channels.json, then every
// <channel-name>/<day>.json file. Day files of one channel are applied in
// name order so thread parents land before their replies; channels are
// processed concurrently. Each channel is paginated once its files are in.
func (im *Importer) Import(ctx context.Context, zr *zip.Reader) (ImportSummary, error) {
	var summary ImportSummary

	files := make(map[string]*zip.File, len(zr.File))
	days := make(map[string][]*zip.File)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(f.Name, "./")
		files[name] = f

		dir, base := path.Split(name)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" || strings.Contains(dir, "/") || path.Ext(base) != ".json" {
			continue
		}
		days[dir] = append(days[dir], f)
	}

	users, err := im.importUsers(ctx, files[usersFile])
	if err != nil {
		return summary, err
	}
	summary.Users = users

	byName, channels, err := im.importChannels(ctx, files[channelsFile])
	if err != nil {
		return summary, err
	}
	summary.Channels = channels

	dirs := make([]string, 0, len(days))
	for dir := range days {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)

	for _, dir := range dirs {
		channelID, ok := byName[dir]
		if !ok {
			im.log.Warn().Str("directory", dir).Msg("Skipping export directory with no matching channel")
			summary.Skipped = append(summary.Skipped, dir)
			continue
		}
		dayFiles := days[dir]
		sort.Slice(dayFiles, func(i, j int) bool { return dayFiles[i].Name < dayFiles[j].Name })

		g.Go(func() error {
			res, err := im.importChannel(gCtx, channelID, dayFiles)
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to import channel %s (%s): %w", dir, channelID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	im.log.Info().
		Str("users", humanize.Comma(int64(summary.Users))).
		Str("channels", humanize.Comma(int64(summary.Channels))).
		Str("files", humanize.Comma(int64(summary.Files))).
		Str("messages", humanize.Comma(int64(summary.Messages))).
		Str("replies", humanize.Comma(int64(summary.Replies))).
		Int("duplicates", summary.Duplicates).
		Int("orphaned", summary.Orphaned).
		Int("invalid", summary.Invalid).
		Int("pages_closed", summary.PagesClosed).
		Msg("Import finished")
	return summary, nil
}

func (im *Importer) importUsers(ctx context.Context, f *zip.File) (int, error) {
	if f == nil {
		im.log.Warn().Msg("Export has no users.json")
		return 0, nil
	}
	var records []json.RawMessage
	if err := readJSON(f, &records); err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range records {
		u, err := DecodeUser(rec)
		if err != nil {
			im.log.Warn().Err(err).Msg("Skipping malformed user")
			continue
		}
		if err := im.store.UpsertUser(ctx, &u); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// importChannels stores channel records and returns directory name -> id
// with the number of channels stored. A directory may be named after either
// the channel name or its id.
func (im *Importer) importChannels(ctx context.Context, f *zip.File) (map[string]string, int, error) {
	byName := make(map[string]string)
	if f == nil {
		im.log.Warn().Msg("Export has no channels.json")
		return byName, 0, nil
	}
	var records []json.RawMessage
	if err := readJSON(f, &records); err != nil {
		return nil, 0, err
	}

	n := 0
	for _, rec := range records {
		c, err := DecodeChannel(rec)
		if err != nil {
			im.log.Warn().Err(err).Msg("Skipping malformed channel")
			continue
		}
		if err := im.store.UpsertChannel(ctx, &c); err != nil {
			return nil, 0, err
		}
		byName[c.ID] = c.ID
		if c.Name != "" {
			byName[c.Name] = c.ID
		}
		n++
	}
	return byName, n, nil
}

func (im *Importer) importChannel(ctx context.Context, channelID string, dayFiles []*zip.File) (ImportSummary, error) {
	var res ImportSummary
	log := im.log.With().Str("channel", channelID).Logger()

	for _, f := range dayFiles {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var records []timeline.Raw
		if err := readJSON(f, &records); err != nil {
			return res, err
		}
		res.Files++

		msgs := make([]model.Message, 0, len(records))
		for _, rec := range records {
			m, err := timeline.Normalize(rec, channelID)
			if err != nil {
				res.Invalid++
				log.Warn().Err(err).Str("file", f.Name).Msg("Skipping invalid message")
				continue
			}
			m.Channel = channelID
			msgs = append(msgs, m)
		}

		report, err := im.engine.Insert(ctx, timeline.Classify(msgs))
		if err != nil {
			return res, err
		}
		res.Messages += report.Messages
		res.Replies += report.Replies
		res.Duplicates += len(report.Duplicates)
		res.Orphaned += len(report.Orphaned)
	}

	closed, err := im.engine.AdvanceAll(ctx, channelID)
	res.PagesClosed = closed
	if err != nil {
		return res, err
	}

	log.Debug().Int("files", res.Files).Int("messages", res.Messages).Int("pages_closed", closed).Msg("Channel imported")
	return res, nil
}

func readJSON(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", f.Name, err)
	}
	return nil
}
