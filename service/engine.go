package service

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"civic-governance-backend/challenge"
	"civic-governance-backend/model"
	"civic-governance-backend/repository"
)

// ledgerLock is the name of the global lock every state change runs under.
const ledgerLock = "ledger"

// Dependencies wires the engines to storage, the role registry and the
// side channels that observe committed changes.
type Dependencies struct {
	Repo       repository.LedgerRepository
	Authorizer Authorizer
	Clock      Clock
	Locker     Locker
	Publisher  EventPublisher
	KeyFilter  KeyFilter
	ReadCache  ReadCache
	Grants     GrantNotifier
	Logger     zerolog.Logger
	Params     Params
}

func (d *Dependencies) withDefaults() {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Locker == nil {
		d.Locker = &LocalLocker{}
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Params == (Params{}) {
		d.Params = DefaultParams()
	}
}

// now truncates to whole seconds, the resolution timestamps are stored at.
func (d *Dependencies) now() time.Time {
	return time.Unix(d.Clock.Now().Unix(), 0).UTC()
}

// txScope is the view a state-changing operation gets of the ledger.
type txScope struct {
	repo   repository.LedgerRepository
	now    time.Time
	events []model.Event
	grants int
}

func (s *txScope) emit(topic, typ, key string, payload interface{}) {
	s.events = append(s.events, model.Event{Topic: topic, Type: typ, Key: key, Payload: payload, At: s.now})
}

// run executes fn under the global ledger lock inside one transaction.
// Events are published and grant relays poked only after commit.
func (d *Dependencies) run(ctx context.Context, op string, fn func(s *txScope) error) error {
	start := time.Now()
	var scope *txScope

	err := d.Locker.WithLock(ctx, ledgerLock, func() error {
		now := d.now()
		return d.Repo.Transaction(ctx, func(tx repository.LedgerRepository) error {
			scope = &txScope{repo: tx, now: now}
			return fn(scope)
		})
	})
	observeOp(op, err, time.Since(start))

	if err != nil {
		if CodeOf(err) == ErrorCodeInternal {
			d.Logger.Error().Err(err).Str("op", op).Msg("ledger operation failed")
		} else {
			d.Logger.Debug().Err(err).Str("op", op).Msg("ledger operation refused")
		}
		return err
	}

	for _, e := range scope.events {
		d.Publisher.Publish(e)
	}
	if scope.grants > 0 && d.Grants != nil {
		d.Grants.Notify()
	}
	d.Logger.Info().Str("op", op).Int("events", len(scope.events)).Dur("took", time.Since(start)).Msg("ledger operation committed")
	return nil
}

// internal wraps an infrastructure error with the failing operation.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return errors.Wrap(err, op)
}

func (d *Dependencies) requireAdmin(ctx context.Context, op, caller string) error {
	ok, err := d.Authorizer.IsAdmin(ctx, caller)
	if err != nil {
		return internal(op, err)
	}
	if !ok {
		return permissionDenied(op, "%s is not an administrator", caller).With("account", caller)
	}
	return nil
}

func (d *Dependencies) requireCitizen(ctx context.Context, op, caller string) error {
	ok, err := d.Authorizer.IsCitizen(ctx, caller)
	if err != nil {
		return internal(op, err)
	}
	if !ok {
		return permissionDenied(op, "%s is not a citizen", caller).With("account", caller)
	}
	return nil
}

func (d *Dependencies) requirePoliticalActor(ctx context.Context, op, caller string) error {
	ok, err := d.Authorizer.IsPoliticalActor(ctx, caller)
	if err != nil {
		return internal(op, err)
	}
	if !ok {
		return permissionDenied(op, "%s is not a political actor", caller).With("account", caller)
	}
	return nil
}

// deriveKey hashes the parts with the calendar nonce appended big-endian.
func deriveKey(nonce uint64, parts ...string) string {
	buf := make([][]byte, 0, len(parts)+1)
	for _, p := range parts {
		buf = append(buf, []byte(p))
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	buf = append(buf, n[:])
	return challenge.Keccak256Hex(buf...)
}
