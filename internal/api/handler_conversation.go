package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

type CreateConversationBody struct {
	Title string `json:"title,omitempty" doc:"Conversation title" maxLength:"500"`
}

type CreateConversationInput struct {
	Body CreateConversationBody
}

type ConversationOutput struct {
	Body storage.Conversation
}

type ListConversationsInput struct{}

type ListConversationsOutput struct {
	Body []storage.Conversation
}

type ConversationHandler struct {
	svc    DataService
	logger *slog.Logger
}

func registerConversationRoutes(api huma.API, h *ConversationHandler, auth huma.Middlewares) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-conversation",
		Method:        http.MethodPost,
		Path:          "/v1/conversations",
		Summary:       "Create a conversation",
		Tags:          []string{"conversations"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   auth,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/v1/conversations",
		Summary:     "List the caller's conversations",
		Tags:        []string{"conversations"},
		Middlewares: auth,
	}, h.List)
}

func (h *ConversationHandler) Create(ctx context.Context, input *CreateConversationInput) (*ConversationOutput, error) {
	user := userFrom(ctx)
	c, err := h.svc.CreateConversation(ctx, user, input.Body.Title)
	if err != nil {
		return nil, dataError(h.logger, err, "user_id", user)
	}
	return &ConversationOutput{Body: *c}, nil
}

func (h *ConversationHandler) List(ctx context.Context, _ *ListConversationsInput) (*ListConversationsOutput, error) {
	user := userFrom(ctx)
	convs, err := h.svc.ListConversations(ctx, user)
	if err != nil {
		return nil, dataError(h.logger, err, "user_id", user)
	}
	if convs == nil {
		convs = []storage.Conversation{}
	}
	return &ListConversationsOutput{Body: convs}, nil
}
