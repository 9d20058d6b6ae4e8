package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/covid19cz/erouska-push/internal/constants"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	redisclient "github.com/go-redis/redis/v8"
)

//Store Log of expired APNS tokens, one sorted set per environment scored by the expiration time.
type Store struct {
	client redisclient.UniversalClient
	ttl    time.Duration
}

var _ push.ExpiredSource = (*Store)(nil)

//NewStore Creates store. The log of an environment expires after ttl without new records, 0 means forever.
func NewStore(client redisclient.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

//Connect Connects to Redis at addr and checks the connection.
func Connect(ctx context.Context, addr string, db int) (*redisclient.Client, error) {
	logger := logging.FromContext(ctx).Named("feedback.Connect")

	logger.Debug("Connecting to push Redis")

	client := redisclient.NewClient(&redisclient.Options{
		Addr: addr,
		DB:   db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("Connection to Redis failed: %v", err)
	}

	logger.Debugf("Connected to push Redis at %v", addr)

	return client, nil
}

func key(env push.Environment) string {
	return constants.RedisKeyExpiredPrefix + string(env)
}

//Record Adds token to the log of the environment. Recording the same token again only moves its timestamp.
func (s *Store) Record(ctx context.Context, env push.Environment, token string, at time.Time) error {
	k := key(env)

	_, err := s.client.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
		pipe.ZAdd(ctx, k, &redisclient.Z{Score: float64(at.Unix()), Member: token})
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

//FetchInactiveIDs Reads and clears the log of the environment, oldest first.
func (s *Store) FetchInactiveIDs(ctx context.Context, env push.Environment) ([]string, error) {
	k := key(env)

	var tokens *redisclient.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
		tokens = pipe.ZRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil && err != redisclient.Nil {
		return nil, err
	}

	return tokens.Val(), nil
}

//PeekInactiveIDs Reads the log of the environment, oldest first, without clearing it.
func (s *Store) PeekInactiveIDs(ctx context.Context, env push.Environment) ([]string, error) {
	tokens, err := s.client.ZRange(ctx, key(env), 0, -1).Result()
	if err != nil && err != redisclient.Nil {
		return nil, err
	}
	return tokens, nil
}
