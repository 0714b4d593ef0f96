package rotation

import (
	"context"
	"time"

	"github.com/nerrad567/court-rotation/internal/courtapi"
)

// maxPhoneAttempts bounds the search for unused phone-number identifiers
// when provisioning a batch.
const maxPhoneAttempts = 200

// PoolManager assembles user pools for sessions. It prefers recycling
// still-valid users from the most recent session of the same scope and
// only registers fresh users to cover the shortfall, keeping pressure
// off the reservation service.
type PoolManager struct {
	client   ReservationClient
	sessions *SessionStore
	logger   Logger
	now      func() time.Time
}

// NewPoolManager wires a PoolManager.
func NewPoolManager(client ReservationClient, sessions *SessionStore, logger Logger) *PoolManager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PoolManager{client: client, sessions: sessions, logger: logger, now: time.Now}
}

// SetClock overrides the pool manager's clock. Test use only.
func (p *PoolManager) SetClock(now func() time.Time) { p.now = now }

// AcquirePool returns exactly count usable users for a new session.
// Reused users come first, preserving their prior pool order; freshly
// provisioned users are appended. exclude holds animal names already
// claimed elsewhere (other courts in the same multi start) and may be nil.
//
// Returns *PartialProvisioningError when registration and approval cannot
// produce enough users.
func (p *PoolManager) AcquirePool(ctx context.Context, count int, scope Scope, exclude map[string]bool) ([]courtapi.User, error) {
	pool := p.reusable(ctx, scope, exclude)
	if len(pool) > count {
		pool = pool[:count]
	}
	if len(pool) == count {
		p.logger.Info("reusing existing user pool", "scope", string(scope), "users", count)
		return pool, nil
	}

	need := count - len(pool)
	p.logger.Info("topping up user pool",
		"scope", string(scope), "reused", len(pool), "provisioning", need)

	fresh, err := p.provision(ctx, need)
	if err != nil {
		return nil, err
	}
	pool = append(pool, fresh...)
	if len(pool) < count {
		return nil, &PartialProvisioningError{Produced: len(pool), Required: count}
	}
	return pool, nil
}

// reusable collects still-valid users from the latest session of the
// given scope, in their original pool order. Storage trouble degrades to
// an empty result; a fresh pool will be provisioned instead.
func (p *PoolManager) reusable(ctx context.Context, scope Scope, exclude map[string]bool) []courtapi.User {
	var candidates []courtapi.User
	switch scope {
	case ScopeMulti:
		sess, err := p.sessions.LoadMultiSession(ctx)
		if err != nil {
			return nil
		}
		for _, court := range sess.Courts {
			candidates = append(candidates, court.Users...)
		}
	default:
		sess, err := p.sessions.LoadSession(ctx)
		if err != nil {
			return nil
		}
		candidates = sess.Users
	}

	now := p.now()
	seen := make(map[string]bool, len(candidates))
	var valid []courtapi.User
	for _, u := range candidates {
		switch {
		case !u.IsApproved:
		case u.ExpiresAt == nil || !now.Before(*u.ExpiresAt):
		case exclude[u.AnimalName] || seen[u.AnimalName]:
		default:
			seen[u.AnimalName] = true
			valid = append(valid, u)
		}
	}
	return valid
}

// provision registers and approves count fresh users. Individual
// failures are logged and skipped; the caller decides whether the final
// tally is enough.
func (p *PoolManager) provision(ctx context.Context, count int) ([]courtapi.User, error) {
	phones := p.uniquePhones(count)
	expiresAt := p.now().Add(UserValidity)

	users := make([]courtapi.User, 0, count)
	for _, phone := range phones {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reg, err := p.client.Register(ctx, phone)
		if err != nil {
			p.logger.Warn("user registration failed, skipping", "phone", phone, "error", err)
			continue
		}
		user := reg.User

		if err := p.client.Approve(ctx, user.AnimalName); err != nil {
			p.logger.Warn("user approval failed, dropping user",
				"animalName", user.AnimalName, "error", err)
			continue
		}
		user.IsApproved = true
		user.ExpiresAt = &expiresAt
		users = append(users, user)
	}
	return users, nil
}

// uniquePhones generates count distinct phone-number identifiers.
func (p *PoolManager) uniquePhones(count int) []string {
	seen := make(map[string]bool, count)
	phones := make([]string, 0, count)
	for attempts := 0; len(phones) < count && attempts < maxPhoneAttempts; attempts++ {
		phone := courtapi.GeneratePhoneNumber()
		if seen[phone] {
			continue
		}
		seen[phone] = true
		phones = append(phones, phone)
	}
	return phones
}
