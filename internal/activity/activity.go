package activity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/external"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

var log = logging.For("activity")

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Store interface {
	Insert(ctx context.Context, a *models.UserActivity) (*models.UserActivity, error)
	Page(ctx context.Context, userID *uuid.UUID, offset, limit int) ([]models.UserActivity, int, error)
	Truncate(ctx context.Context) error
}

type Locator interface {
	Locate(ctx context.Context, ip string) external.Location
}

// Logger records user events with a coarse location. Logging never fails
// the action that triggered it.
type Logger struct {
	store   Store
	locator Locator
	onLog   func(models.UserActivity)
}

// NewLogger builds a Logger. locator may be nil, in which case every row is
// stored with an "Unknown" location.
func NewLogger(store Store, locator Locator) *Logger {
	return &Logger{store: store, locator: locator}
}

// OnLog registers a callback run after each successful insert.
func (l *Logger) OnLog(fn func(models.UserActivity)) {
	l.onLog = fn
}

func (l *Logger) Log(ctx context.Context, userID uuid.UUID, event, description, ip string) {
	loc := external.Location{IP: ip, City: "Unknown", Region: "Unknown", Country: "Unknown"}
	if l.locator != nil {
		loc = l.locator.Locate(ctx, ip)
	}

	row, err := l.store.Insert(ctx, &models.UserActivity{
		UserID:      userID,
		Event:       event,
		Description: description,
		IP:          ip,
		City:        loc.City,
		Region:      loc.Region,
		Country:     loc.Country,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).WithField("event", event).
			Warn("Failed to record activity")
		return
	}
	log.WithField("user_id", userID).WithField("event", event).Debug("Activity recorded")
	if l.onLog != nil && row != nil {
		l.onLog(*row)
	}
}

// Pagination is a normalized page request.
type Pagination struct {
	Page  int
	Limit int
}

// ParsePagination reads page and limit query values. Missing or bad values
// fall back to page 1 and DefaultLimit; limit is capped at MaxLimit.
func ParsePagination(pageStr, limitStr string) Pagination {
	p := Pagination{Page: 1, Limit: DefaultLimit}
	if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages is ceil(count/limit), never less than 1.
func TotalPages(count, limit int) int {
	if limit <= 0 || count <= 0 {
		return 1
	}
	return (count + limit - 1) / limit
}

// Page fetches one page. A nil userID returns every user's rows and must
// only be reachable by admins.
func (l *Logger) Page(ctx context.Context, userID *uuid.UUID, p Pagination) (*models.ActivityPage, error) {
	rows, total, err := l.store.Page(ctx, userID, p.Offset(), p.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch activity page %d: %w", p.Page, err)
	}
	return &models.ActivityPage{
		Activities:  rows,
		TotalPages:  TotalPages(total, p.Limit),
		CurrentPage: p.Page,
	}, nil
}

func (l *Logger) Truncate(ctx context.Context) error {
	if err := l.store.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate activity: %w", err)
	}
	log.Info("Activity log truncated")
	return nil
}
