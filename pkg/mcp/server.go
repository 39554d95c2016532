// Package mcp exposes the session lifecycle API and keyword registry as
// MCP tools, so agent frontends can drive sessions over stdio or HTTP.
package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/devicelab-dev/keyflow/pkg/session"
)

// Server wraps the MCP server around a session manager.
type Server struct {
	manager *session.Manager
	mcp     *mcpserver.MCPServer
}

// NewServer builds the server with all keyflow tools registered.
func NewServer(manager *session.Manager, version string) *Server {
	s := &Server{
		manager: manager,
		mcp: mcpserver.NewMCPServer(
			"keyflow",
			version,
			mcpserver.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving the stdio transport.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// ServeHTTP blocks serving the streamable HTTP transport on the port.
func (s *Server) ServeHTTP(port int) error {
	httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("create_session",
			mcp.WithDescription("Create an isolated execution session and launch the app under test. Returns session_id and driver_id."),
			mcp.WithString("platform", mcp.Description("Target platform label for the driver backend")),
			mcp.WithString("device", mcp.Description("Device identifier for the driver backend")),
		),
		s.handleCreateSession,
	)

	s.mcp.AddTool(
		mcp.NewTool("execute_keyword",
			mcp.WithDescription("Dispatch one keyword against a session. Parameters may be positional (JSON array) or named (JSON object); lists inside a position form fallback groups or locator sets."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to execute in")),
			mcp.WithString("keyword", mcp.Required(), mcp.Description("Canonical keyword name or slug, e.g. 'Press Element'")),
			mcp.WithString("params", mcp.Description("Positional parameters as JSON array text")),
			mcp.WithString("named", mcp.Description("Named parameters as JSON object text")),
			mcp.WithString("templates", mcp.Description("Inline template images as JSON object of name to base64 PNG")),
		),
		s.handleExecuteKeyword,
	)

	s.mcp.AddTool(
		mcp.NewTool("upload_template",
			mcp.WithDescription("Register an image template for a session's image locators"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to upload into")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Logical template name referenced by image: locators")),
			mcp.WithString("image", mcp.Required(), mcp.Description("Base64-encoded PNG bytes")),
		),
		s.handleUploadTemplate,
	)

	s.mcp.AddTool(
		mcp.NewTool("get_workspace",
			mcp.WithDescription("Capture the session's current workspace: element list, content hash, optionally page source and screenshot"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to capture")),
			mcp.WithBoolean("include_source", mcp.Description("Include the page source document")),
			mcp.WithBoolean("include_screenshot", mcp.Description("Include the screenshot as base64 PNG")),
			mcp.WithString("filter", mcp.Description("Keep only elements whose text or id contains this pattern; the content hash covers the filtered list")),
		),
		s.handleGetWorkspace,
	)

	s.mcp.AddTool(
		mcp.NewTool("list_keywords",
			mcp.WithDescription("List every registered keyword with its slug, description and parameter specs"),
		),
		s.handleListKeywords,
	)

	s.mcp.AddTool(
		mcp.NewTool("terminate_session",
			mcp.WithDescription("Terminate a session and release its driver, templates and streams"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to terminate")),
		),
		s.handleTerminateSession,
	)
}
