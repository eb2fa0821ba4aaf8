package academic

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/plugin/markdown"
	"github.com/hrygo/etlabplus/store/cache"
)

// Asker sends a question with supporting data to the AI proxy.
// *portal.Client satisfies it.
type Asker interface {
	AskAI(ctx context.Context, query string, data any) (string, error)
}

// Query kinds select the dataset sent with a question.
const (
	KindAttendance = "attendance"
	KindResults    = "results"
)

// summaryQueries are sent when the question is empty.
var summaryQueries = map[string]string{
	KindAttendance: "Attendance summary",
	KindResults:    "Results summary",
}

// maxChatMessages bounds the saved conversation.
const maxChatMessages = 50

// ChatMessage is one saved turn of the AI conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Answer is an AI reply in its raw markdown and terminal forms.
type Answer struct {
	Query    string `json:"query"`
	Kind     string `json:"kind"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

// Ask sends query with the dataset of the given kind. An empty query asks
// for a summary of that dataset. A dataset that is not cached is sent as
// an empty list.
func (s *Service) Ask(ctx context.Context, query, kind string) (*Answer, error) {
	if s.asker == nil {
		return nil, apperrors.ServiceUnavailable("AI queries are not configured", nil)
	}
	if kind == "" {
		kind = KindAttendance
	}
	if _, ok := summaryQueries[kind]; !ok {
		return nil, apperrors.InvalidArgument("query type must be attendance or results")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = summaryQueries[kind]
	}

	reply, err := s.asker.AskAI(ctx, query, s.aiData(ctx, kind))
	if err != nil {
		if appErr := apperrors.FromContext(err); appErr != nil {
			return nil, appErr
		}
		return nil, apperrors.ServiceUnavailable("AI query failed", err)
	}

	answer := &Answer{
		Query:    query,
		Kind:     kind,
		Markdown: reply,
		Text:     markdown.ToPlainText(reply),
	}
	s.appendChat(ctx,
		ChatMessage{Role: "user", Kind: kind, Text: query, Timestamp: s.now()},
		ChatMessage{Role: "assistant", Kind: kind, Text: reply, Timestamp: s.now()},
	)
	return answer, nil
}

// aiData returns the attendance subject list with metadata stripped, or the
// results list as cached.
func (s *Service) aiData(ctx context.Context, kind string) any {
	switch kind {
	case KindAttendance:
		if record := s.optionalAttendance(ctx); record != nil {
			return record.SubjectList()
		}
	case KindResults:
		entry := s.cache.GetResults(ctx)
		if entry != nil && json.Valid(entry.Data) {
			return entry.Data
		}
	}
	return []any{}
}

// ChatHistory returns the saved conversation, oldest first.
func (s *Service) ChatHistory(ctx context.Context) []ChatMessage {
	entry := s.cache.GetAIChatHistory(ctx)
	if entry == nil {
		return nil
	}
	history, err := cache.Decode[[]ChatMessage](entry)
	if err != nil {
		slog.Warn("discarding unreadable chat history", slog.String("error", err.Error()))
		return nil
	}
	return history
}

func (s *Service) appendChat(ctx context.Context, messages ...ChatMessage) {
	history := append(s.ChatHistory(ctx), messages...)
	if len(history) > maxChatMessages {
		history = history[len(history)-maxChatMessages:]
	}
	s.cache.SaveAIChatHistory(ctx, history)
}
