package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"expedientes/internal/domain"
	"expedientes/internal/engine/auth"
	"expedientes/internal/events"
	"expedientes/internal/repo"
)

// CaseFileCreateOptions are parameters for creating a case file. Empty
// Status and Priority take the defaults.
type CaseFileCreateOptions struct {
	Number      string
	Title       string
	Description string
	Status      string
	Priority    string
	Article     string
}

// CaseFileListOptions filters ListCaseFiles. Status "" or "all" disables
// the status filter. Area is honoured only for unrestricted callers.
type CaseFileListOptions struct {
	Search string
	Status string
	Area   string
	Limit  int
	Cursor string
}

// CreateCaseFile opens a case file owned by actor in actor's area.
func (e Engine) CreateCaseFile(ctx context.Context, actor domain.User, opts CaseFileCreateOptions) (domain.CaseFile, error) {
	ctx, span := e.startSpan(ctx, "engine.case.create")
	var err error
	defer func() { endSpan(span, err) }()

	c := domain.CaseFile{
		ID:          uuid.NewString(),
		Number:      strings.TrimSpace(opts.Number),
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Area:        actor.Area,
		Status:      domain.StatusPendiente,
		Priority:    domain.PriorityMedia,
		Article:     domain.Article(strings.TrimSpace(opts.Article)),
		OwnerID:     actor.ID,
		CreatedBy:   actor.ID,
	}
	switch {
	case c.Number == "":
		err = invalid("numero", "number is required")
	case c.Title == "":
		err = invalid("titulo", "title is required")
	case c.Article == "":
		err = invalid("articulo", "article is required")
	case !c.Article.Valid():
		err = invalid("articulo", fmt.Sprintf("unknown article %q", c.Article))
	}
	if err != nil {
		return domain.CaseFile{}, err
	}
	if opts.Status != "" {
		c.Status = domain.CaseStatus(opts.Status)
		if !c.Status.Valid() {
			err = invalid("estado", fmt.Sprintf("unknown status %q", opts.Status))
			return domain.CaseFile{}, err
		}
	}
	if opts.Priority != "" {
		c.Priority = domain.Priority(opts.Priority)
		if !c.Priority.Valid() {
			err = invalid("prioridad", fmt.Sprintf("unknown priority %q", opts.Priority))
			return domain.CaseFile{}, err
		}
	}
	now := domain.Timestamp(e.now())
	c.CreatedAt, c.UpdatedAt = now, now

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCaseFile(ctx, tx, c); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return invalid("numero", "case file number already exists")
			}
			return fmt.Errorf("insert case file: %w", err)
		}
		return e.events().Append(ctx, tx, events.TypeCaseCreated, "case_file", c.ID, actor.ID, events.EventPayload{
			"number": c.Number,
			"area":   c.Area,
		})
	})
	if err != nil {
		return domain.CaseFile{}, err
	}
	e.Metrics.CaseFileCreated()
	e.log().Infow("case file created", "case_file_id", c.ID, "number", c.Number, "area", c.Area)
	created, err := e.Repo.GetCaseFile(ctx, c.ID)
	return created, err
}

// GetCaseFile returns a case file visible to actor.
func (e Engine) GetCaseFile(ctx context.Context, actor domain.User, id string) (domain.CaseFile, error) {
	c, err := e.Repo.GetCaseFile(ctx, id)
	if err != nil {
		return domain.CaseFile{}, err
	}
	if !auth.CanView(e.Config, actor, c) {
		return domain.CaseFile{}, auth.ForbiddenError{Action: "view case file", Reason: "case file belongs to another area"}
	}
	return c, nil
}

// ListCaseFiles lists the case files visible to actor, newest first.
func (e Engine) ListCaseFiles(ctx context.Context, actor domain.User, opts CaseFileListOptions) (Page[domain.CaseFile], error) {
	f := repo.CaseFileFilters{
		Search: strings.TrimSpace(opts.Search),
		Limit:  opts.Limit,
	}
	status := strings.TrimSpace(opts.Status)
	if status != "" && status != domain.StatusAll {
		f.Status = domain.CaseStatus(status)
		if !f.Status.Valid() {
			return Page[domain.CaseFile]{}, invalid("estado", fmt.Sprintf("unknown status %q", status))
		}
	}
	if e.Config.Unrestricted(actor.Role, actor.Area) {
		if area := strings.TrimSpace(opts.Area); area != "" {
			f.Area = domain.Area(area)
			if !f.Area.Valid() {
				return Page[domain.CaseFile]{}, invalid("area", fmt.Sprintf("unknown area %q", area))
			}
		}
	} else {
		f.Area = actor.Area
	}
	after, err := parseCursor(opts.Cursor)
	if err != nil {
		return Page[domain.CaseFile]{}, err
	}
	f.After = after
	items, next, err := e.Repo.ListCaseFiles(ctx, f)
	if err != nil {
		return Page[domain.CaseFile]{}, err
	}
	return Page[domain.CaseFile]{Items: items, NextCursor: composeCursor(next)}, nil
}

// ListHistory returns the completed transfers of a case file, newest first.
func (e Engine) ListHistory(ctx context.Context, caseFileID string, limit int, cursor string) (Page[domain.HistoryRecord], error) {
	exists, err := e.Repo.CaseFileExists(ctx, caseFileID)
	if err != nil {
		return Page[domain.HistoryRecord]{}, err
	}
	if !exists {
		return Page[domain.HistoryRecord]{}, fmt.Errorf("case file %s: %w", caseFileID, repo.ErrNotFound)
	}
	after, err := parseCursor(cursor)
	if err != nil {
		return Page[domain.HistoryRecord]{}, err
	}
	items, next, err := e.Repo.ListHistory(ctx, caseFileID, limit, after)
	if err != nil {
		return Page[domain.HistoryRecord]{}, err
	}
	return Page[domain.HistoryRecord]{Items: items, NextCursor: composeCursor(next)}, nil
}
