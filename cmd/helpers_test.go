package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/store"
)

// fixture returns the path of a message in pkg/eml/testdata.
func fixture(name string) string {
	return filepath.Join("..", "pkg", "eml", "testdata", name)
}

// copyFixtures copies the named fixtures into a temp directory.
func copyFixtures(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		data, err := os.ReadFile(fixture(name))
		if err != nil {
			t.Fatalf("reading fixture %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	return dir
}

// fakeRedis records publishes and emulates SET NX in memory.
type fakeRedis struct {
	mu        sync.Mutex
	published map[string]int
	keys      map[string]bool
	closed    int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string]int{}, keys: map[string]bool{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, _ interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(!f.keys[key])
	f.keys[key] = true
	return cmd
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeRedis) count(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[channel]
}

// fakeStore keeps records in memory, keyed by fingerprint.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*store.Record
	order   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*store.Record{}}
}

func (s *fakeStore) HandleResult(_ context.Context, origin string, r *analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := store.NewRecord(r, origin, time.Now())
	rec.Report = r
	if existing, ok := s.records[rec.Fingerprint]; ok {
		existing.TimesSeen++
		return nil
	}
	s.records[rec.Fingerprint] = rec
	s.order = append(s.order, rec.Fingerprint)
	return nil
}

func (s *fakeStore) GetAnalysis(_ context.Context, fingerprint string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return nil, mterrors.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*store.Record{}
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		rec := *s.records[s.order[i]]
		rec.Report = nil
		out = append(out, &rec)
	}
	return out, nil
}

// testDeps returns dependencies backed by fakes, with default configuration.
func testDeps() (*CommandDeps, *fakeStore, *fakeRedis) {
	st := newFakeStore()
	rdb := newFakeRedis()
	cfg := config.DefaultConfig()
	cfg.Redis.Addr = "redis.test:6379"

	deps := &CommandDeps{
		Config:     cfg,
		Logger:     logging.NewNopLogger(),
		SaveConfig: config.SaveConfig,
		ConnectToDB: func(context.Context, *config.Config) (*pgxpool.Pool, error) {
			return nil, mterrors.ErrValidation
		},
		OpenStore: func(context.Context, *config.Config, logging.Logger) (AnalysisStore, func(), error) {
			return st, func() {}, nil
		},
		ConnectRedis: func(context.Context, *config.Config) (events.Client, error) {
			return rdb, nil
		},
	}
	return deps, st, rdb
}

// execute runs c with args and returns what it wrote to stdout and stderr.
func execute(c *cobra.Command, stdin io.Reader, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	if stdin != nil {
		c.SetIn(stdin)
	}
	c.SetArgs(args)
	c.SilenceUsage = true
	c.SilenceErrors = true
	err := c.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
