//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/config"
	"github.com/pendergraft/poolkeeper/internal/server"
	"github.com/pendergraft/poolkeeper/internal/storage"
	"github.com/pendergraft/poolkeeper/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// genesisTime is where the test clock starts.
const genesisTime = 1_700_000_000

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	Clock             *testClock
}

// testClock is a settable engine clock shared by every server in the run.
type testClock struct {
	unix atomic.Int64
}

func newTestClock(start int64) *testClock {
	c := &testClock{}
	c.unix.Store(start)
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(c.unix.Load(), 0)
}

func (c *testClock) Unix() uint64 {
	return uint64(c.unix.Load())
}

func (c *testClock) Advance(d time.Duration) {
	c.unix.Add(int64(d / time.Second))
}

// setupPostgresE starts a Postgres container and returns the connection string (error-returning variant for TestMain)
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("poolkeeper"),
		postgres.WithUsername("poolkeeper"),
		postgres.WithPassword("poolkeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

func testConfig(connString string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			RequestTimeout: 30,
			MaxBodySizeKB:  1024,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Auth:      config.AuthConfig{Type: "api-key"},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Protocol: config.ProtocolConfig{
			WithdrawalQueueAddress: "0x889edC2eDab5f40e902b864aD4d7AdE8E412F9B1",
			BurnerAddress:          "0xD15a672319Cf0352560eE76d9e89eAB0889046D3",
			TreasuryAddress:        "0x3e40D73EB977Dc6a537aF587D48316feE66E9C4c",
			ModuleAddress:          "0xFdDf38947aFB03C621C71b06C9C70bce73f12999",
			TreasuryFeeBP:          500,
			ModuleFeeBP:            500,

			ChurnValidatorsPerDayLimit:         255,
			OneOffCLBalanceDecreaseBPLimit:     100,
			AnnualBalanceIncreaseBPLimit:       10_000,
			SimulatedShareRateDeviationBPLimit: 15,
			MaxPositiveTokenRebase:             1_000_000_000,
			RequestTimestampMargin:             24,
		},
	}
}

// startServerE starts the poolkeeper server in-process (error-returning variant for TestMain)
func startServerE(connString string, clock *testClock) (*httptest.Server, storage.Store, error) {
	cfg := testConfig(connString)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	srv, err := server.New(context.Background(), cfg, store, logger, server.WithEngineOptions(domain.WithClock(clock.Now)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server: %w", err)
	}

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string, roles ...string) string {
	key, err := store.CreateAPIKey(context.Background(), name, roles)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func milliEther(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000))
}
