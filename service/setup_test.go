package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"civic-governance-backend/model"
	"civic-governance-backend/models"
	"civic-governance-backend/repository"
)

var t0 = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAuthorizer struct {
	mu       sync.Mutex
	admins   map[string]bool
	actors   map[string]uint64
	citizens map[string]bool
}

func newFakeAuthorizer() *fakeAuthorizer {
	return &fakeAuthorizer{
		admins:   map[string]bool{"admin": true},
		actors:   map[string]uint64{},
		citizens: map[string]bool{},
	}
}

func (a *fakeAuthorizer) IsAdmin(_ context.Context, account string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.admins[account], nil
}

func (a *fakeAuthorizer) IsPoliticalActor(_ context.Context, account string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.actors[account]
	return ok, nil
}

func (a *fakeAuthorizer) IsCitizen(_ context.Context, account string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.citizens[account], nil
}

func (a *fakeAuthorizer) PoliticalActorCredit(_ context.Context, account string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.actors[account], nil
}

func (a *fakeAuthorizer) CountCitizens(context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.citizens)), nil
}

func (a *fakeAuthorizer) addCitizens(accounts ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range accounts {
		a.citizens[acc] = true
	}
}

func (a *fakeAuthorizer) addActor(account string, credit uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actors[account] = credit
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Notify() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// testEnv bundles both engines over one in-memory database.
type testEnv struct {
	repo      *repository.GormLedgerRepository
	clock     *fakeClock
	auth      *fakeAuthorizer
	events    *recordingPublisher
	notifier  *countingNotifier
	elections *ElectionEngine
	votings   *VotingEngine
}

func setupTestEnv(t *testing.T, mutate ...func(p *Params)) *testEnv {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	params := DefaultParams()
	for _, m := range mutate {
		m(&params)
	}
	env := &testEnv{
		repo:     repository.NewGormLedgerRepository(db),
		clock:    &fakeClock{now: t0},
		auth:     newFakeAuthorizer(),
		events:   &recordingPublisher{},
		notifier: &countingNotifier{},
	}
	deps := Dependencies{
		Repo:       env.repo,
		Authorizer: env.auth,
		Clock:      env.clock,
		Publisher:  env.events,
		Grants:     env.notifier,
		Logger:     zerolog.Nop(),
		Params:     params,
	}
	env.elections = NewElectionService(deps)
	env.votings, err = NewVotingService(deps)
	require.NoError(t, err)
	return env
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "unexpected error: %v", err)
}
