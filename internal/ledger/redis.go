package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"khqrgw/internal/domain"
)

const (
	keyPrefix = "khqr:payment:"
	keyIndex  = "khqr:payments"
	keyShort  = "khqr:short:"
)

// Redis is the shared ledger, selected with LEDGER_REDIS_URL. Same
// contract as Memory; survives restarts of this process only as long as
// the Redis instance does.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		PoolSize:        50,
		MinIdleConns:    5,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     500 * time.Millisecond,
		ReadTimeout:     300 * time.Millisecond,
		WriteTimeout:    300 * time.Millisecond,
		MaxRetries:      2,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Save(ctx context.Context, p domain.Payment) error {
	raw, err := sonic.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, keyPrefix+p.MD5, raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDuplicateBill
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, keyIndex, redis.Z{Score: float64(p.CreatedAt.UnixNano()), Member: p.MD5})
		// SetNX: first registration wins on short-hash collisions.
		pipe.SetNX(ctx, keyShort+p.ShortHash, p.MD5, 0)
		return nil
	})
	return err
}

func (r *Redis) Get(ctx context.Context, md5 string) (domain.Payment, error) {
	raw, err := r.client.Get(ctx, keyPrefix+md5).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	var p domain.Payment
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (r *Redis) GetByShortHash(ctx context.Context, shortHash string) (domain.Payment, error) {
	md5, err := r.client.Get(ctx, keyShort+shortHash).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	return r.Get(ctx, md5)
}

func (r *Redis) List(ctx context.Context, limit int) ([]domain.Payment, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	md5s, err := r.client.ZRevRange(ctx, keyIndex, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(md5s))
	for _, md5 := range md5s {
		p, err := r.Get(ctx, md5)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Redis) SetStatus(ctx context.Context, md5 string, status domain.Status) error {
	return r.update(ctx, md5, func(p *domain.Payment) {
		p.Status = status
	})
}

func (r *Redis) MarkCompleted(ctx context.Context, md5 string, s domain.Settlement) error {
	return r.update(ctx, md5, func(p *domain.Payment) {
		p.Status = domain.StatusCompleted
		p.TransactionHash = s.TransactionHash
		p.FromAccount = s.FromAccount
		p.CompletedAt = s.SettledAt
	})
}

func (r *Redis) SetDeeplink(ctx context.Context, md5 string, url string) error {
	return r.update(ctx, md5, func(p *domain.Payment) {
		p.DeeplinkURL = url
	})
}

// update applies fn under a WATCH so a reconciler sweep and an on-demand
// status check cannot clobber each other's transition.
func (r *Redis) update(ctx context.Context, md5 string, fn func(*domain.Payment)) error {
	key := keyPrefix + md5
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var p domain.Payment
		if err := sonic.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.Status.Terminal() {
			return domain.ErrTerminalStatus
		}
		fn(&p)
		updated, err := sonic.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (r *Redis) Pending(ctx context.Context) ([]domain.Payment, error) {
	all, err := r.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []domain.Payment
	// List is newest-first; sweeps want oldest-first.
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Status == domain.StatusPending || all[i].Status == domain.StatusError {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *Redis) Purge(ctx context.Context) error {
	md5s, err := r.client.ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, md5 := range md5s {
			pipe.Del(ctx, keyPrefix+md5)
			if len(md5) >= 8 {
				pipe.Del(ctx, keyShort+md5[:8])
			}
		}
		pipe.Del(ctx, keyIndex)
		return nil
	})
	return err
}
