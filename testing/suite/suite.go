package suite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

const (
	mongoPort       = "27017/tcp"
	mongoImage      = "mongo"
	mongoTag        = "7.0"
	mongoReplicaSet = "rs0"
	mongoDatabase   = "tictactoe_test"
)

type Suite struct {
	*testing.T
	Logger *zap.Logger

	Storage *redis.Client
	// Server is set only for in-memory suites.
	Server *miniredis.Miniredis

	// Mongo is set only by NewMongoDocker.
	Mongo *mongo.Database
}

// New starts an in-memory Redis for the test.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	server := miniredis.RunT(t)

	redisClient := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})
	t.Cleanup(func() {
		_ = redisClient.Close()
	})

	return ctx, &Suite{
		T:       t,
		Logger:  zaptest.NewLogger(t),
		Storage: redisClient,
		Server:  server,
	}
}

// NewDocker runs a real Redis container. The test is skipped when docker is not reachable.
func NewDocker(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	// pulls an image, creates a container based on it and runs it
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
		Env:        []string{},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// never returns error
	_ = resource.Expire(expireDuration) // Tell docker to hard kill the container in 120 seconds

	redisHost := resource.GetHostPort(redisPort)

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	pool.MaxWait = maxWaitDuration

	var redisClient *redis.Client
	if err = pool.Retry(func() error {
		redisClient = redis.NewClient(&redis.Options{
			Addr: redisHost,
		})
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}

		t.Fatalf("could not connect to redis: %v", err)
	}

	if err = redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()

		_ = redisClient.Close()

		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	return ctx, &Suite{
		T:       t,
		Logger:  zaptest.NewLogger(t),
		Storage: redisClient,
	}
}

// NewMongoDocker runs a single node MongoDB replica set, which change streams need.
// The test is skipped when docker is not reachable.
func NewMongoDocker(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: mongoImage,
		Tag:        mongoTag,
		Cmd:        []string{"--replSet", mongoReplicaSet, "--bind_ip_all"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	_ = resource.Expire(expireDuration)

	// The member is addressed from inside the container; the client connects directly.
	uri := "mongodb://" + resource.GetHostPort(mongoPort) + "/?directConnection=true"

	pool.MaxWait = maxWaitDuration

	var client *mongo.Client
	if err = pool.Retry(func() error {
		if client == nil {
			client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
			if err != nil {
				return err
			}
		}

		return client.Ping(ctx, nil)
	}); err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("could not connect to mongo: %v", err)
	}

	initiate := bson.D{{Key: "replSetInitiate", Value: bson.D{
		{Key: "_id", Value: mongoReplicaSet},
		{Key: "members", Value: bson.A{bson.D{{Key: "_id", Value: 0}, {Key: "host", Value: "localhost:27017"}}}},
	}}}
	if err = client.Database("admin").RunCommand(ctx, initiate).Err(); err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("could not initiate replica set: %v", err)
	}

	if err = pool.Retry(func() error {
		var hello struct {
			IsWritablePrimary bool `bson:"isWritablePrimary"`
		}

		if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
			return err
		}

		if !hello.IsWritablePrimary {
			return errors.New("replica set has no primary yet")
		}

		return nil
	}); err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("replica set did not elect a primary: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()

		_ = client.Disconnect(context.Background())

		if err := pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	return ctx, &Suite{
		T:      t,
		Logger: zaptest.NewLogger(t),
		Mongo:  client.Database(mongoDatabase),
	}
}
