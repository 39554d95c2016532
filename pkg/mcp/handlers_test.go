package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/keyflow/pkg/config"
	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/driver/mock"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/session"
)

func newTestServer(t *testing.T) (*Server, *mock.Driver) {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.DefaultTimeout = config.Duration(300 * time.Millisecond)
	cfg.Engine.PollInterval = config.Duration(20 * time.Millisecond)

	drv := mock.New(mock.Config{ScreenWidth: 200, ScreenHeight: 100})
	factory := func(config.Driver) (core.Driver, map[locator.Kind]locator.Detector, error) {
		return drv, drv.Detectors(), nil
	}
	manager, err := session.NewManager(cfg, factory, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)
	return NewServer(manager, "test"), drv
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	result, err := s.handleCreateSession(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.NotEmpty(t, payload["session_id"])
	require.NotEmpty(t, payload["driver_id"])
	return payload["session_id"]
}

func TestHandleCreateAndTerminate(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	result, err := s.handleTerminateSession(context.Background(), call(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// Terminated sessions are gone.
	result, err = s.handleTerminateSession(context.Background(), call(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleExecuteKeyword(t *testing.T) {
	s, drv := newTestServer(t)
	drv.Screen().Place(core.ElementInfo{
		Text:    "Home",
		Bounds:  core.Bounds{X: 10, Y: 10, Width: 20, Height: 10},
		Visible: true,
		Enabled: true,
	})
	id := createSession(t, s)

	result, err := s.handleExecuteKeyword(context.Background(), call(map[string]any{
		"session_id": id,
		"keyword":    "Press Element",
		"params":     `["Home"]`,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"keyword": "Press Element"`)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestHandleExecuteKeyword_FailureIsErrorResult(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	result, err := s.handleExecuteKeyword(context.Background(), call(map[string]any{
		"session_id": id,
		"keyword":    "Press Element",
		"params":     `["Ghost"]`,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not_found")
}

func TestHandleExecuteKeyword_MissingArgs(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleExecuteKeyword(context.Background(), call(map[string]any{"keyword": "Sleep"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleUploadTemplateAndImageLocator(t *testing.T) {
	s, drv := newTestServer(t)
	id := createSession(t, s)
	drv.Screen().PlaceImageMatch("logo", core.ElementInfo{
		Bounds: core.Bounds{X: 40, Y: 40, Width: 16, Height: 16},
	}, 0)

	result, err := s.handleUploadTemplate(context.Background(), call(map[string]any{
		"session_id": id,
		"name":       "logo",
		"image":      base64.StdEncoding.EncodeToString([]byte("pngbytes")),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	result, err = s.handleExecuteKeyword(context.Background(), call(map[string]any{
		"session_id": id,
		"keyword":    "Assert Presence",
		"params":     `["image:logo"]`,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))
}

func TestHandleGetWorkspace(t *testing.T) {
	s, drv := newTestServer(t)
	drv.Screen().SetSource("<hierarchy/>")
	id := createSession(t, s)

	result, err := s.handleGetWorkspace(context.Background(), call(map[string]any{
		"session_id":         id,
		"include_source":     true,
		"include_screenshot": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.NotEmpty(t, payload["hash"])
	assert.Equal(t, "<hierarchy/>", payload["source"])
	assert.NotEmpty(t, payload["screenshot"])
}

func TestHandleGetWorkspace_FilterNarrowsElements(t *testing.T) {
	s, drv := newTestServer(t)
	drv.Screen().Place(core.ElementInfo{
		Text:    "Home",
		Bounds:  core.Bounds{X: 10, Y: 10, Width: 20, Height: 10},
		Visible: true,
		Enabled: true,
	})
	drv.Screen().Place(core.ElementInfo{
		Text:    "Settings",
		Bounds:  core.Bounds{X: 40, Y: 10, Width: 20, Height: 10},
		Visible: true,
		Enabled: true,
	})
	id := createSession(t, s)

	result, err := s.handleGetWorkspace(context.Background(), call(map[string]any{
		"session_id": id,
		"filter":     "home",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Hash     string `json:"hash"`
		Elements []struct {
			Text string `json:"text"`
		} `json:"elements"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.Len(t, payload.Elements, 1)
	assert.Equal(t, "Home", payload.Elements[0].Text)
	assert.NotEmpty(t, payload.Hash)
}

func TestHandleListKeywords(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleListKeywords(context.Background(), call(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	for _, name := range []string{"Press Element", "Run Loop", "Condition", "Date Evaluate"} {
		if !strings.Contains(text, name) {
			t.Errorf("registry listing is missing %q", name)
		}
	}
}
