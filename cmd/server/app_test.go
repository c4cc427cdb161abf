package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/auth"
	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

// memoryEnv configures a server that needs no external services.
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTPILOT_DATABASE_DRIVER", "memory")
	t.Setenv("POSTPILOT_LLM_PROVIDER", "template")
	t.Setenv("POSTPILOT_AUTH_JWT_SECRET", testSecret)
	t.Setenv("POSTPILOT_SERVER_LOG_LEVEL", "error")
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	memoryEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestServe_MemoryEndToEnd(t *testing.T) {
	cfg := memoryConfig(t)
	seedID := uuid.New()
	cfg.Accounts = []config.AccountSeed{{ID: seedID.String(), Platform: "weibo", Name: "shop"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg, logger.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	token, err := mintToken(ctx, cfg.Auth, "test")
	require.NoError(t, err)

	body := `{"type":"generate_and_publish","account_id":"` + seedID.String() +
		`","generation_config":{"theme":"green tea","keywords":["matcha"]}}`
	req, err := http.NewRequest(http.MethodPost, base+"/api/tasks", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var submitted struct {
		TaskID uuid.UUID `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, base+"/api/tasks/"+submitted.TaskID.String(), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			return false
		}
		return got.Status == string(domain.TaskStatusCompleted)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewApplication_RejectsBadSeed(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Accounts = []config.AccountSeed{{ID: uuid.NewString(), Platform: "weibo", Name: "shop", Status: "banned"}}

	_, err := newApplication(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "invalid account status")
}

func TestAccountFromSeed(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))
	id := uuid.New()

	tests := []struct {
		name       string
		seed       config.AccountSeed
		wantStatus domain.AccountStatus
		wantErr    string
	}{
		{
			name:       "defaults to active",
			seed:       config.AccountSeed{ID: id.String(), Platform: "weibo", Name: "shop"},
			wantStatus: domain.AccountStatusActive,
		},
		{
			name:       "explicit status",
			seed:       config.AccountSeed{ID: id.String(), Platform: "weibo", Name: "shop", Status: "suspended"},
			wantStatus: domain.AccountStatusSuspended,
		},
		{
			name:    "bad id",
			seed:    config.AccountSeed{ID: "nope", Platform: "weibo", Name: "shop"},
			wantErr: "invalid account id",
		},
		{
			name:    "bad status",
			seed:    config.AccountSeed{ID: id.String(), Platform: "weibo", Name: "shop", Status: "banned"},
			wantErr: "invalid account status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := accountFromSeed(tt.seed, now)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, account.ID)
			assert.Equal(t, tt.wantStatus, account.Status)
			assert.Equal(t, time.UTC, account.CreatedAt.Location())
		})
	}
}

func TestEngineConfig(t *testing.T) {
	c := engineConfig(config.EngineConfig{
		Workers:           3,
		CapabilityTimeout: 5 * time.Second,
		BackoffBase:       time.Second,
		BackoffCap:        time.Minute,
		ConflictRetries:   2,
	})
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, 5*time.Second, c.CapabilityTimeout)
	assert.Equal(t, 2, c.ConflictRetries)
	assert.Equal(t, time.Second, c.RetryPolicy.Base)
	assert.Equal(t, time.Minute, c.RetryPolicy.Cap)
	assert.Positive(t, c.PersistTimeout)
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	memoryEnv(t)

	out, err := runRoot(t, "token", "--subject", "deploy-bot")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour}, nil)
	require.NoError(t, err)
	claims, err := tokens.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", claims.Subject)
}

func TestCommandsRequiringPostgres(t *testing.T) {
	memoryEnv(t)

	_, err := runRoot(t, "migrate", "status")
	assert.ErrorIs(t, err, errNeedsPostgres)

	_, err = runRoot(t, "account", "put", "--platform", "weibo", "--name", "shop")
	assert.ErrorIs(t, err, errNeedsPostgres)
}

func TestAccountPut_ValidatesBeforeConnecting(t *testing.T) {
	memoryEnv(t)

	_, err := runRoot(t, "account", "put", "--platform", "weibo", "--name", "shop", "--status", "banned")
	assert.ErrorContains(t, err, "invalid account status")

	_, err = runRoot(t, "account", "put", "--name", "shop")
	assert.ErrorContains(t, err, "platform")
}

func TestInvalidConfigFails(t *testing.T) {
	memoryEnv(t)
	t.Setenv("POSTPILOT_AUTH_JWT_SECRET", "short")

	_, err := runRoot(t, "token")
	assert.ErrorContains(t, err, "failed to load configuration")
}
