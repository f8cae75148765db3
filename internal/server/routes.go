package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/engine/auth"
	"expedientes/internal/repo"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Status: "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig, log *zap.SugaredLogger) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for an existing user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.AllowDevLogin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "dev login disabled", nil)
		}
		u, err := e.UserByUsername(ctx, input.Body.Username)
		if err != nil {
			return nil, handleError(log, err)
		}
		token, exp, err := signToken(authCfg.JWTSecret, u, authCfg.TokenTTL, time.Now())
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: domain.Timestamp(exp), User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Acknowledge logout",
		Description: "Tokens are stateless; clients discard theirs and may ignore failures of this call.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Status: "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: actor}, nil
	})
}

func registerCaseFiles(api huma.API, e engine.Engine, log *zap.SugaredLogger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-case-files",
		Method:      http.MethodGet,
		Path:        "/expedientes",
		Summary:     "List visible case files",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Search string `query:"search" doc:"case-insensitive match on number, title or description"`
		Status string `query:"estado" doc:"pendiente, en_proceso, resuelto or all"`
		Area   string `query:"area" doc:"area filter, honoured for unrestricted callers"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body CaseFileList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListCaseFiles(ctx, actor, engine.CaseFileListOptions{
			Search: input.Search,
			Status: input.Status,
			Area:   input.Area,
			Limit:  normalizeLimit(input.Limit),
			Cursor: input.Cursor,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body CaseFileList `json:"body"`
		}{Body: CaseFileList{Items: page.Items, NextCursor: page.NextCursor}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-case-file",
		Method:        http.MethodPost,
		Path:          "/expedientes",
		Summary:       "Create a case file owned by the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateCaseFileRequest `json:"body"`
	}) (*struct {
		Body domain.CaseFile `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCaseFile(ctx, actor, engine.CaseFileCreateOptions{
			Number:      input.Body.Number,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			Article:     input.Body.Article,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.CaseFile `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case-file",
		Method:      http.MethodGet,
		Path:        "/expedientes/{id}",
		Summary:     "Get a case file",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.CaseFile `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetCaseFile(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.CaseFile `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-case-file-history",
		Method:      http.MethodGet,
		Path:        "/expedientes/{id}/history",
		Summary:     "List completed transfers of a case file, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body HistoryList `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		page, err := e.ListHistory(ctx, input.ID, normalizeLimit(input.Limit), input.Cursor)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body HistoryList `json:"body"`
		}{Body: HistoryList{Items: page.Items, NextCursor: page.NextCursor}}, nil
	})
}

func registerTransfers(api huma.API, e engine.Engine, log *zap.SugaredLogger) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-transfer",
		Method:        http.MethodPost,
		Path:          "/transfers/request",
		Summary:       "Ask another user to take custody of a case file",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body TransferRequestBody `json:"body"`
	}) (*struct {
		Body domain.TransferRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RequestTransfer(ctx, actor, input.Body.CaseFileID, input.Body.ToUserID, input.Body.Message)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.TransferRequest `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/transfers/notifications",
		Summary:     "Pending transfer requests addressed to the caller",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body TransferList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListPendingNotifications(ctx, actor, normalizeLimit(input.Limit), input.Cursor)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body TransferList `json:"body"`
		}{Body: TransferList{Items: page.Items, NextCursor: page.NextCursor}}, nil
	})

	resolve := func(op string, fn func(context.Context, domain.User, string) (domain.TransferRequest, error)) {
		huma.Register(api, huma.Operation{
			OperationID: op + "-transfer",
			Method:      http.MethodPost,
			Path:        "/transfers/" + op + "/{notification_id}",
			Summary:     strings.ToUpper(op[:1]) + op[1:] + " a pending transfer request",
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			NotificationID string `path:"notification_id"`
		}) (*struct {
			Body domain.TransferRequest `json:"body"`
		}, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, err := fn(ctx, actor, input.NotificationID)
			if err != nil {
				return nil, handleError(log, err)
			}
			return &struct {
				Body domain.TransferRequest `json:"body"`
			}{Body: t}, nil
		})
	}
	resolve("accept", e.AcceptTransfer)
	resolve("reject", e.RejectTransfer)
}

func registerUsers(api huma.API, e engine.Engine, log *zap.SugaredLogger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users-by-area",
		Method:      http.MethodGet,
		Path:        "/users/by-area/{area}",
		Summary:     "Users of an area, sorted by name",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Area string `path:"area"`
	}) (*struct {
		Body UserList `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsersByArea(ctx, input.Area)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body UserList `json:"body"`
		}{Body: UserList{Items: users}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user (admin)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireAdmin(actor, "create user"); err != nil {
			return nil, handleError(log, err)
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Username: input.Body.Username,
			Name:     input.Body.Name,
			Area:     input.Body.Area,
			Role:     input.Body.Role,
			ActorID:  actor.ID,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine, log *zap.SugaredLogger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events (admin)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"user,api_key,case_file,transfer"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireAdmin(actor, "read events"); err != nil {
			return nil, handleError(log, err)
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		resp := EventList{Items: items}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(resp.Items[limit-1].ID, 10)
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: resp}, nil
	})
}
