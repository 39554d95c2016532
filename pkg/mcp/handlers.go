package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/devicelab-dev/keyflow/pkg/config"
	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/stream"
)

func (s *Server) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var overrides *config.Driver
	platform, _ := args["platform"].(string)
	device, _ := args["device"].(string)
	if platform != "" || device != "" {
		overrides = &config.Driver{Backend: "mock", Platform: platform, DeviceID: device}
	}

	sess, err := s.manager.Create(ctx, overrides)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]string{
		"session_id": sess.ID(),
		"driver_id":  sess.DriverID(),
	})
}

func (s *Server) handleExecuteKeyword(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	keyword, _ := args["keyword"].(string)
	if sessionID == "" || keyword == "" {
		return errorResult("session_id and keyword are required"), nil
	}

	var params []interface{}
	if raw, _ := args["params"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return errorResult(fmt.Sprintf("params is not a JSON array: %s", err)), nil
		}
	}
	var named map[string]interface{}
	if raw, _ := args["named"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &named); err != nil {
			return errorResult(fmt.Sprintf("named is not a JSON object: %s", err)), nil
		}
	}
	templates, err := decodeTemplates(args["templates"])
	if err != nil {
		return errorResult(err.Error()), nil
	}

	rec, err := s.manager.Execute(ctx, sessionID, keyword, params, named, templates)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	result, err := jsonResult(rec)
	if err != nil {
		return nil, err
	}
	result.IsError = rec.Status == core.StatusFail
	return result, nil
}

func (s *Server) handleUploadTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	name, _ := args["name"].(string)
	image, _ := args["image"].(string)
	if sessionID == "" || name == "" || image == "" {
		return errorResult("session_id, name and image are required"), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return errorResult(fmt.Sprintf("image is not valid base64: %s", err)), nil
	}

	sess, err := s.manager.Get(sessionID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := sess.UploadTemplate(name, decoded); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("template %s registered (%d bytes)", name, len(decoded))), nil
}

func (s *Server) handleGetWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}
	includeSource, _ := args["include_source"].(bool)
	includeScreenshot, _ := args["include_screenshot"].(bool)

	sess, err := s.manager.Get(sessionID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	snap, err := sess.CaptureWorkspace(ctx, includeSource)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if pattern, _ := args["filter"].(string); pattern != "" {
		snap.Filter(stream.MatchText(pattern))
	}

	payload := map[string]interface{}{
		"hash":       snap.Hash,
		"capturedAt": snap.CapturedAt,
		"elements":   snap.Snapshot.Elements,
	}
	if includeSource {
		payload["source"] = snap.Snapshot.Source
	}
	if includeScreenshot {
		payload["screenshot"] = base64.StdEncoding.EncodeToString(snap.Snapshot.Screenshot)
	}
	return jsonResult(payload)
}

func (s *Server) handleListKeywords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.manager.Engine().Registry().All())
}

func (s *Server) handleTerminateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}
	if err := s.manager.Terminate(sessionID); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("session %s terminated", sessionID)), nil
}

func decodeTemplates(raw interface{}) (map[string][]byte, error) {
	text, _ := raw.(string)
	if text == "" {
		return nil, nil
	}
	var encoded map[string]string
	if err := json.Unmarshal([]byte(text), &encoded); err != nil {
		return nil, fmt.Errorf("templates is not a JSON object: %w", err)
	}
	out := make(map[string][]byte, len(encoded))
	for name, b64 := range encoded {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("template %s is not valid base64: %w", name, err)
		}
		out[name] = decoded
	}
	return out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(encoded)), nil
}
