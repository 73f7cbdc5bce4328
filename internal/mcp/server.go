// Package mcp exposes warm status to AI coding assistants over the Model
// Context Protocol, so an assistant can check whether the workspace index is
// hot before leaning on code intelligence.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/pkg/readiness"
)

// Server wraps the MCP server with warm-status tools.
type Server struct {
	cfg    *config.Config
	server *server.MCPServer
}

// NewServer creates an MCP server for the given configuration.
func NewServer(cfg *config.Config, version string) *Server {
	s := &Server{cfg: cfg}

	mcpServer := server.NewMCPServer(
		"prewarm",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.server = mcpServer
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("warm_status",
			mcp.WithDescription("Check whether the code-intelligence index for this workspace is warm. Reports startup, worker pool, indexing phase, and completion state."),
		),
		s.handleStatus,
	)

	mcpServer.AddTool(
		mcp.NewTool("warm_log",
			mcp.WithDescription("Get the tail of the code-intelligence extension's log from the warm session."),
			mcp.WithNumber("lines",
				mcp.Description("Number of trailing lines to return (default: 50)"),
			),
		),
		s.handleLog,
	)
}

func (s *Server) signalSource() *readiness.FileSignalSource {
	return readiness.NewFileSignalSource(
		s.cfg.UserDataDir(),
		readiness.DefaultLogPatterns(s.cfg.Extension.LogChannel),
	)
}

// handleStatus handles the warm_status tool.
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := s.signalSource()
	st := readiness.DefaultMarkers().Derive(source.Read())

	var b strings.Builder
	fmt.Fprintf(&b, "engine started: %v\n", st.Started)
	fmt.Fprintf(&b, "source files discovered: %d\n", st.UnitCount)
	fmt.Fprintf(&b, "worker pool ready: %v\n", st.BackgroundReady)
	fmt.Fprintf(&b, "indexing in progress: %v\n", st.Indexing)
	fmt.Fprintf(&b, "index complete: %v\n", st.IndexDone)
	if path := source.Resolve(); path != "" {
		fmt.Fprintf(&b, "log: %s\n", path)
	} else {
		b.WriteString("log: not found (warm session has not started)\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

// handleLog handles the warm_log tool.
func (s *Server) handleLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("lines", 50)

	path := s.signalSource().Resolve()
	if path == "" {
		return mcp.NewToolResultError("no extension log found"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read log: %v", err)), nil
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

// HTTPHandler returns the streamable HTTP transport for mounting on the
// status server, so assistants can reach the tools over the same port.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}
