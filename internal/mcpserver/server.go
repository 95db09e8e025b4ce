// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the signed-in user's notes for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/comments"
	"github.com/starford/pinenote/internal/dashboard"
	"github.com/starford/pinenote/internal/notes"
)

// Server wraps the MCP server with Pinenote tools.
type Server struct {
	mcp      *server.MCPServer
	repo     *notes.Repository
	dash     *dashboard.Controller
	comments *comments.Service
}

// New creates a new MCP server with all Pinenote tools registered.
func New(repo *notes.Repository, dash *dashboard.Controller, cs *comments.Service) *Server {
	s := &Server{repo: repo, dash: dash, comments: cs}

	s.mcp = server.NewMCPServer(
		"Pinenote",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the signed-in user's notes, most recently updated first."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive filter on title and content")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("refresh_notes",
		mcp.WithDescription("Reload the notes from the server."),
	), s.refreshNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note together with its comments."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The title must not be empty."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title and content of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New body")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Nothing happens unless confirm is true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Append a comment to a note. Comments cannot be edited or removed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Comment text")),
	), s.addComment)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, dashboard.ErrNotConfirmed) {
		return mcp.NewToolResultError("delete not confirmed: pass confirm=true")
	}
	return mcp.NewToolResultError(apperr.Message(err))
}

func toolJSON(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view := s.dash.View(req.GetString("query", ""))
	return toolJSON(view.Notes), nil
}

func (s *Server) refreshNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.repo.List(ctx); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loaded %d notes", len(s.repo.Notes()))), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.comments.Detail(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(d), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.repo.Create(ctx, title, req.GetString("content", ""))
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(n), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.repo.Update(ctx, id, title, req.GetString("content", ""))
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(n), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.dash.Delete(ctx, id, req.GetBool("confirm", false)); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) addComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.comments.AddComment(ctx, id, content)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(c), nil
}
