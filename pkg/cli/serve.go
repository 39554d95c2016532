package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/logger"
	"github.com/devicelab-dev/keyflow/pkg/mcp"
	"github.com/devicelab-dev/keyflow/pkg/session"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the session API as MCP tools",
	Description: `Start an MCP server exposing session creation, keyword execution,
template upload, workspace capture and the keyword registry as tools.

Examples:
  keyflow serve --transport stdio
  keyflow serve --transport http --port 8931`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Transport to serve on: stdio or http",
			Value: "stdio",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Listen port for the http transport",
			Value: 8931,
		},
	},
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Sync()

	manager, err := session.NewManager(cfg, nil, logger.L())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer manager.Shutdown()

	server := mcp.NewServer(manager, Version)
	switch c.String("transport") {
	case "stdio":
		logger.L().Info("serving MCP over stdio")
		err = server.ServeStdio()
	case "http":
		port := c.Int("port")
		logger.L().Info("serving MCP over http", zap.Int("port", port))
		err = server.ServeHTTP(port)
	default:
		return cli.Exit(fmt.Sprintf("unknown transport %q, want stdio or http", c.String("transport")), 1)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
