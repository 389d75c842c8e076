package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/docent/internal/session"
)

// MCPDeps holds the dependencies of the MCP surface.
type MCPDeps struct {
	Sessions  *session.Manager
	Assistant Asker
	Document  interface {
		Text() (string, error)
	}
	Subject string
}

// NewMCPServer creates an MCP server exposing the document assistant as a
// tool plus the extracted document text as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docent",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions(fmt.Sprintf("docent — question answering scoped to %s.", deps.Subject)),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_document",
			mcp.WithDescription("Ask a question answered strictly from the reference document. Out-of-scope questions get a fixed refusal."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("language", mcp.Description("Answer language (default English)")),
			mcp.WithString("length", mcp.Description("Answer length: short or detailed (default short)")),
		),
		mcpAskDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"document://text",
			"Reference Document",
			mcp.WithResourceDescription("Extracted plain text of the reference document"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceDocument(deps),
	)

	return s
}

func mcpAskDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		length := session.Length(req.GetString("length", ""))
		if length != "" && !session.ValidLength(length) {
			return mcpError(fmt.Sprintf("length must be %q or %q", session.LengthShort, session.LengthDetailed)), nil
		}

		// Every tool call is a one-shot exchange with no carried history.
		sess := deps.Sessions.Create(session.StyleOptions{
			Language: req.GetString("language", ""),
			Length:   length,
		})
		defer deps.Sessions.Delete(sess.ID)

		turn, err := deps.Assistant.Ask(ctx, sess, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		payload, err := json.Marshal(map[string]any{
			"answer":    turn.Content,
			"has_audio": turn.HasAudio(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcpText(string(payload)), nil
	}
}

func mcpResourceDocument(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := deps.Document.Text()
		if err != nil {
			return nil, fmt.Errorf("loading document: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "document://text",
				MIMEType: "text/plain",
				Text:     text,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func mcpError(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}
