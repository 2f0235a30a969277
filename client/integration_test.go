package client_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlq-client/client"
	"tlq-client/config"
	"tlq-client/loadbalance"
	"tlq-client/log"
	"tlq-client/message"
	"tlq-client/registry"
	"tlq-client/tlqerr"
	"tlq-client/tlqtest"
)

func startServer(t testing.TB) *tlqtest.Server {
	t.Helper()
	srv, err := tlqtest.NewServer()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(time.Second) })
	return srv
}

func newClient(t testing.TB, cfg config.Config, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{client.WithLogger(log.New(io.Discard, logrus.DebugLevel))}, opts...)
	c, err := client.NewWithConfig(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func noSleep(context.Context, time.Duration) error { return nil }

// Full round trip: Client → Logging → Retry → Timeout → TCP → tlqtest.Server → Queue
func TestQueueLifecycle(t *testing.T) {
	srv := startServer(t)
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())
	ctx := context.Background()

	ok, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	added, err := c.AddMessage(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, message.StateReady, added.State)
	assert.EqualValues(t, 7, added.ID.Version())
	_, err = c.AddMessage(ctx, "second")
	require.NoError(t, err)

	got, err := c.GetMessage(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, message.StateProcessing, got.State)
	assert.NotNil(t, got.LockUntil)

	res, err := c.RetryMessage(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "Success", res)

	msgs, err := c.GetMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 1, msgs[0].RetryCount)

	res, err = c.DeleteMessage(ctx, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Success", res)
	assert.Equal(t, 1, srv.Queue().Len())

	n, err := c.PurgeQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	empty, err := c.GetMessage(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestBatchDelete(t *testing.T) {
	srv := startServer(t)
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		srv.Queue().Add("m")
	}
	msgs, err := c.GetMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	before := srv.Requests()
	_, err = c.DeleteMessages(ctx, []uuid.UUID{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	require.NoError(t, err)
	assert.Equal(t, before+1, srv.Requests(), "one request for the whole batch")
	assert.Equal(t, 0, srv.Queue().Len())
}

func TestRetryOverDroppedConnections(t *testing.T) {
	srv := startServer(t)
	srv.FailNext(tlqtest.Fault{Drop: true}, tlqtest.Fault{Garbage: true})
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).MaxRetries(2).Build(),
		client.WithSleeper(noSleep))

	msg, err := c.AddMessage(context.Background(), "survives")
	require.NoError(t, err)
	assert.Equal(t, "survives", msg.Body)
	assert.Equal(t, 3, srv.Requests())
}

func TestServerErrorsAreClassified(t *testing.T) {
	srv := startServer(t)
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).MaxRetries(3).Build(),
		client.WithSleeper(noSleep))
	ctx := context.Background()

	srv.FailNext(tlqtest.Fault{Status: 500, Body: "boom"})
	_, err := c.GetMessages(ctx, 1)
	var terr *tlqerr.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tlqerr.Server, terr.Kind)
	assert.Equal(t, 500, terr.Status)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, srv.Requests())

	srv.FailNext(tlqtest.Fault{Status: 503}, tlqtest.Fault{Status: 429})
	_, err = c.GetMessages(ctx, 1)
	require.NoError(t, err, "503 and 429 are retried")

	srv.FailNext(tlqtest.Fault{Status: 413})
	_, err = c.AddMessage(ctx, "xyz")
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tlqerr.MessageTooLarge, terr.Kind)
	assert.Equal(t, 3, terr.Size, "size of the message, not of the request")

	srv.FailNext(tlqtest.Fault{Status: 404})
	_, err = c.PurgeQueue(ctx)
	assert.Equal(t, tlqerr.NotFound, tlqerr.KindOf(err))

	ok, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FailNext(tlqtest.Fault{Status: 500})
	ok, err = c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeout(t *testing.T) {
	srv := startServer(t)
	srv.FailNext(tlqtest.Fault{Delay: time.Second})
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).TimeoutMs(50).MaxRetries(0).Build())

	start := time.Now()
	_, err := c.GetMessages(context.Background(), 1)
	var terr *tlqerr.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tlqerr.Timeout, terr.Kind)
	assert.LessOrEqual(t, terr.Timeout, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

// The caller's deadline runs out long before the configured 30s timeout.
func TestCallerDeadline(t *testing.T) {
	srv := startServer(t)
	srv.FailNext(tlqtest.Fault{Delay: time.Second})
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetMessages(ctx, 1)

	var terr *tlqerr.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tlqerr.Timeout, terr.Kind)
	assert.True(t, tlqerr.IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, terr.Timeout)
	assert.LessOrEqual(t, terr.Timeout, 50*time.Millisecond, "reports the bound that expired")
	assert.Equal(t, 1, srv.Requests())
}

func TestConnectionRefused(t *testing.T) {
	srv := startServer(t)
	host, port := srv.Host(), srv.Port()
	require.NoError(t, srv.Shutdown(time.Second))

	c := newClient(t, client.Builder().Host(host).Port(port).MaxRetries(1).Build(), client.WithSleeper(noSleep))
	_, err := c.AddMessage(context.Background(), "x")
	assert.Equal(t, tlqerr.Connection, tlqerr.KindOf(err))
	assert.True(t, tlqerr.IsRetryable(err))
}

func TestCanceledContext(t *testing.T) {
	srv := startServer(t)
	c := newClient(t, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.AddMessage(ctx, "x")
	assert.Equal(t, tlqerr.Unknown, tlqerr.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscoveryWithMemoryRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()
	a, b := startServer(t), startServer(t)
	require.NoError(t, a.Register(ctx, reg, "tlq", 1))
	require.NoError(t, b.Register(ctx, reg, "tlq", 1))

	c := newClient(t, client.Builder().ServiceName("tlq").Build(),
		client.WithRegistry(reg, &loadbalance.RoundRobinBalancer{}))

	for i := 0; i < 4; i++ {
		ok, err := c.HealthCheck(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, a.Requests())
	assert.Equal(t, 2, b.Requests())

	// a retry after a failed attempt may land on the other server
	a.FailNext(tlqtest.Fault{Drop: true})
	b.FailNext(tlqtest.Fault{Drop: true})
	retrying := newClient(t, client.Builder().ServiceName("tlq").MaxRetries(2).Build(),
		client.WithRegistry(reg, &loadbalance.RoundRobinBalancer{}), client.WithSleeper(noSleep))
	_, err := retrying.AddMessage(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Queue().Len()+b.Queue().Len())

	require.NoError(t, a.Shutdown(time.Second))
	require.NoError(t, b.Shutdown(time.Second))
	_, err = c.AddMessage(ctx, "nobody home")
	assert.Equal(t, tlqerr.Connection, tlqerr.KindOf(err))
	assert.Contains(t, err.Error(), loadbalance.ErrNoInstances.Error())
}

func TestUnknownBalancer(t *testing.T) {
	_, err := client.NewWithConfig(client.Builder().Balancer("nope").Build(),
		client.WithRegistry(registry.NewMemoryRegistry(), nil))
	assert.Error(t, err)
}

// Needs a running etcd on 127.0.0.1:2379, skipped otherwise.
func TestDiscoveryWithEtcd(t *testing.T) {
	endpoints := []string{"127.0.0.1:2379"}
	reg, err := registry.NewEtcdRegistry(endpoints)
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "tlq-ping"); err != nil {
		t.Skipf("etcd not reachable: %v", err)
	}

	srv := startServer(t)
	service := "tlq-it-" + strings.ReplaceAll(srv.Addr(), ":", "-")
	require.NoError(t, srv.Register(context.Background(), reg, service, 10))

	c := newClient(t, client.Builder().RegistryEndpoints(endpoints...).ServiceName(service).Build())
	msg, err := c.AddMessage(context.Background(), "via etcd")
	require.NoError(t, err)
	assert.Equal(t, "via etcd", msg.Body)
	assert.Equal(t, 1, srv.Requests())
}

func BenchmarkAddMessage(b *testing.B) {
	srv := startServer(b)
	c := newClient(b, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.AddMessage(ctx, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAddMessageParallel(b *testing.B) {
	srv := startServer(b)
	c := newClient(b, client.Builder().Host(srv.Host()).Port(srv.Port()).Build())
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.AddMessage(ctx, "bench"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
