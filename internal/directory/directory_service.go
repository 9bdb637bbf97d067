package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-attendsync/internal/reconcile"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// ErrUnresolved is a diagnostic outcome, not a failure: the enroll number has
// no mapped platform user yet. Callers report it and keep the watermark
// behind the event so the punch is retried once the directory catches up.
var ErrUnresolved = errors.New("directory: enroll number has no platform identity")

const (
	cacheKeyPrefix = "directory:identity:"
	cacheTTL       = 5 * time.Minute
)

// Identity is the platform-side identity of one device-local enroll number.
type Identity struct {
	UserID   string              `json:"user_id"`
	UserType reconcile.UserType  `json:"user_type"`
	ClassID  string              `json:"class_id,omitempty"`
}

func cacheKey(branchID, enrollNumber string) string {
	return cacheKeyPrefix + branchID + ":" + enrollNumber
}

//go:generate mockgen -source=directory_service.go -destination=mock/directory_service_mock.go -package=mock
type Service interface {
	Resolve(ctx context.Context, branchID, enrollNumber string) (Identity, error)
	ResolveAll(ctx context.Context, branchID string, enrollNumbers []string) (map[string]Identity, error)
	ActiveMembers(ctx context.Context, branchID string) ([]Member, error)
}

type service struct {
	repo   Repository
	rdb    *redis.Client
	sf     *singleflight.Group
	logger *zap.Logger
}

func NewService(repo Repository, rdb *redis.Client, logger ...*zap.Logger) Service {
	l := zap.L().Named("directory.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("directory.service")
	}
	return &service{
		repo:   repo,
		rdb:    rdb,
		sf:     &singleflight.Group{},
		logger: l,
	}
}

// Resolve maps one enroll number, going redis -> singleflight -> database.
// Only positive results are cached: a missing mapping may appear at any
// moment once the directory catches up, so negatives always re-query.
func (s *service) Resolve(ctx context.Context, branchID, enrollNumber string) (Identity, error) {
	key := cacheKey(branchID, enrollNumber)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var id Identity
			if err := json.Unmarshal([]byte(raw), &id); err == nil {
				return id, nil
			}
			// Corrupt cache entries are dropped and refilled from the DB.
			s.rdb.Del(ctx, key)
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		member, err := s.repo.FindByEnroll(ctx, branchID, enrollNumber)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnresolved
		}
		if err != nil {
			return nil, fmt.Errorf("directory: lookup %s/%s: %w", branchID, enrollNumber, err)
		}

		id := Identity{
			UserID:   member.UserID.String(),
			UserType: reconcile.UserType(member.UserType),
		}
		if member.ClassID != nil {
			id.ClassID = *member.ClassID
		}

		if s.rdb != nil {
			if raw, err := json.Marshal(id); err == nil {
				if err := s.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
					s.logger.Warn("identity cache write failed",
						zap.String("key", key), zap.Error(err))
				}
			}
		}
		return id, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return v.(Identity), nil
}

// ResolveAll maps a batch of distinct enroll numbers. Unresolved numbers are
// simply absent from the result; any other error aborts, since a directory
// outage must not be mistaken for a wave of unknown identities.
func (s *service) ResolveAll(ctx context.Context, branchID string, enrollNumbers []string) (map[string]Identity, error) {
	out := make(map[string]Identity, len(enrollNumbers))
	for _, enroll := range enrollNumbers {
		if _, done := out[enroll]; done {
			continue
		}
		id, err := s.Resolve(ctx, branchID, enroll)
		if errors.Is(err, ErrUnresolved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[enroll] = id
	}
	return out, nil
}

// ActiveMembers lists the full active roster of a branch, used to synthesize
// absent records for days with no punches. Always hits the database: the
// roster is read once per closed day, not once per punch.
func (s *service) ActiveMembers(ctx context.Context, branchID string) ([]Member, error) {
	members, err := s.repo.FindActiveByBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("directory: list roster %s: %w", branchID, err)
	}
	return members, nil
}
