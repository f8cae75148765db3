package server

import (
	"expedientes/internal/domain"
)

// Request payloads

type DevLoginRequest struct {
	Username string `json:"username" minLength:"1"`
}

type CreateCaseFileRequest struct {
	Number      string `json:"numero"`
	Title       string `json:"titulo"`
	Description string `json:"descripcion,omitempty"`
	Status      string `json:"estado,omitempty" doc:"pendiente, en_proceso or resuelto; defaults to pendiente"`
	Priority    string `json:"prioridad,omitempty" doc:"baja, media or alta; defaults to media"`
	Article     string `json:"articulo" doc:"1 to 6"`
}

type TransferRequestBody struct {
	CaseFileID string `json:"expediente_id"`
	ToUserID   string `json:"to_user_id"`
	Message    string `json:"message,omitempty"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Area     string `json:"area"`
	Role     string `json:"role,omitempty" enum:"user,admin"`
}

// Responses

type DevLoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type CaseFileList struct {
	Items      []domain.CaseFile `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type TransferList struct {
	Items      []domain.TransferRequest `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

type HistoryList struct {
	Items      []domain.HistoryRecord `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type UserList struct {
	Items []domain.User `json:"items"`
}

type EventList struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
