// Package testenv starts the backing services used by integration tests.
package testenv

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type Env struct {
	PG        *postgres.PostgresContainer
	Kafka     *kafka.KafkaContainer
	Redis     *tcredis.RedisContainer
	PGURL     string
	KAddr     []string
	RedisAddr string
}

// Options selects which containers Setup starts.
type Options struct {
	Postgres bool
	Kafka    bool
	Redis    bool
}

func Setup(ctx context.Context, opts Options) (*Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	env := &Env{}
	if opts.Postgres {
		pgC, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("orderflow"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.PG = pgC
		if env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable"); err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}

	if opts.Kafka {
		kafkaC, err := kafka.Run(ctx,
			"confluentinc/confluent-local:7.5.0",
			kafka.WithClusterID("orderflow-test"),
		)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.Kafka = kafkaC
		if env.KAddr, err = kafkaC.Brokers(ctx); err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}

	if opts.Redis {
		redisC, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.Redis = redisC
		if env.RedisAddr, err = redisC.Endpoint(ctx, ""); err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
	if e.Redis != nil {
		_ = e.Redis.Terminate(ctx)
	}
}
