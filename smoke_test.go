package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmydoc/internal/app"
	"askmydoc/internal/testutils"
)

func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.ServerPort = 18081
	cfg.EnableWorker = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Bootstrap(ctx, cfg)
	require.NoError(t, err)
	defer deps.Close()

	a, err := app.New(cfg, deps)
	require.NoError(t, err)

	go func() {
		if err := a.Run(ctx); err != nil {
			t.Logf("app run exited: %v", err)
		}
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond, "server did not become healthy")

	body := `{"input":{"type":"inline","filename":"hello.txt","content":"aGVsbG8gd29ybGQ="}}`
	resp, err := http.Post(base+"/ingest", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID            string `json:"id"`
			ExtractedText string `json:"extracted_text"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "hello world", created.Data.ExtractedText)

	got, err := http.Get(base + "/documents/" + created.Data.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
}
