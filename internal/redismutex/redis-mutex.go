package redismutex

import (
	"context"
	"time"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	redisclient "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

//Locker Mutex manager over Redis
type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

var _ push.Locker = (*Locker)(nil)

//New Creates locker over the client. Locks expire after expiry even when their holder dies.
func New(client *redisclient.Client, expiry time.Duration) *Locker {
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}
}

//Lock Acquires the named mutex, blocking until it's free or redsync gives up.
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	logger := logging.FromContext(ctx).Named("redismutex.Lock")

	mutex := l.rs.NewMutex(name, redsync.WithExpiry(l.expiry))

	logger.Debugf("Trying to acquire '%v' exclusive lock", name)

	if err := mutex.Lock(); err != nil {
		return nil, err
	}

	return func() {
		if _, err := mutex.Unlock(); err != nil {
			logger.Warnf("Could not release '%v' lock: %v", name, err)
		}
	}, nil
}
