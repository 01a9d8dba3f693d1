package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferToolType(t *testing.T) {
	tests := []struct {
		tool string
		want string
	}{
		{"Read", ToolTypeFileRead},
		{"Write", ToolTypeFileWrite},
		{"Edit", ToolTypeFileEdit},
		{"MultiEdit", ToolTypeFileMultiEdit},
		{"Glob", ToolTypeFileGlob},
		{"Grep", ToolTypeFileGrep},
		{"LS", ToolTypeFileList},
		{"List", ToolTypeFileList},
		{"Bash", ToolTypeShell},
		{"NotebookRead", ToolTypeNotebookRead},
		{"NotebookEdit", ToolTypeNotebookEdit},
		{"WebFetch", ToolTypeWebFetch},
		{"WebSearch", ToolTypeWebSearch},
		{"Task", ToolTypeAgent},
		{"Agent", ToolTypeAgent},
		{"TodoRead", ToolTypeTodoRead},
		{"TodoWrite", ToolTypeTodoWrite},
		{"mcp__memory__recall", ToolTypeMCP},
		{"SomethingElse", ToolTypeUnknown},
		{"", ToolTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			assert.Equal(t, tt.want, inferToolType(tt.tool))
		})
	}
}

func TestIsFileTool(t *testing.T) {
	assert.True(t, isFileTool(ToolTypeFileRead))
	assert.True(t, isFileTool(ToolTypeFileGrep))
	assert.True(t, isFileTool(ToolTypeNotebookEdit))
	assert.False(t, isFileTool(ToolTypeShell))
	assert.False(t, isFileTool(ToolTypeWebFetch))
	assert.False(t, isFileTool(ToolTypeUnknown))
}

func TestInferFileAction(t *testing.T) {
	tests := []struct {
		toolType string
		want     string
	}{
		{ToolTypeFileGlob, FileActionSearch},
		{ToolTypeFileGrep, FileActionSearch},
		{ToolTypeFileList, FileActionList},
		{ToolTypeFileWrite, FileActionCreate},
		{ToolTypeFileEdit, FileActionEdit},
		{ToolTypeFileMultiEdit, FileActionEdit},
		{ToolTypeNotebookEdit, FileActionEdit},
		{ToolTypeFileRead, FileActionRead},
		{ToolTypeNotebookRead, FileActionRead},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferFileAction(tt.toolType), tt.toolType)
	}
}

func TestExtractFilePath(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{
			name: "complete document",
			args: `{"file_path":"internal/core/types.go","limit":100}`,
			want: "internal/core/types.go",
		},
		{
			name: "alternate key",
			args: `{"path":"docs/"}`,
			want: "docs/",
		},
		{
			name: "notebook key",
			args: `{"notebook_path":"analysis.ipynb","cell_id":"3"}`,
			want: "analysis.ipynb",
		},
		{
			name: "truncated mid-value",
			args: `{"file_path":"internal/ingest/agg`,
			want: "internal/ingest/agg",
		},
		{
			name: "truncated after value",
			args: `{"file_path":"a.go","old_str`,
			want: "a.go",
		},
		{
			name: "escaped characters",
			args: `{"file_path":"C:\\temp\\notes.txt"}`,
			want: `C:\temp\notes.txt`,
		},
		{
			name: "escaped in truncated fragment",
			args: `{"file_path":"dir\\sub\\fi`,
			want: `dir\sub\fi`,
		},
		{
			name: "no path key",
			args: `{"command":"ls -la"}`,
			want: "",
		},
		{
			name: "empty payload",
			args: "",
			want: "",
		},
		{
			name: "not json",
			args: "garbage",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFilePath(tt.args))
		})
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	// Multibyte content must never be cut mid-rune.
	s := "héllo wörld"
	got := truncate(s, 6)
	assert.Equal(t, []rune(s)[:6], []rune(got))

	assert.Equal(t, "short", truncate("short", 100))
	assert.Equal(t, "", truncate("", 10))
}
