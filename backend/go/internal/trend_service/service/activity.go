package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"Trendline/backend/go/internal/entity"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ActivityMessage is the wire form of one user interaction on the activity topic.
type ActivityMessage struct {
	ID          string  `json:"id,omitempty"`
	UserID      string  `json:"user_id"`
	Description string  `json:"description"`
	Timestamp   float64 `json:"timestamp,omitempty"` // Unix 秒
}

// ActivityPublisher sends messages to the activity topic.
type ActivityPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// ActivityStamper turns a description into an event.
type ActivityStamper interface {
	FetchActivity(description, actorID string) models.ActivityEvent
}

var ErrInvalidActivity = errors.New("invalid activity")

// Retryable reports whether a HandleMessage error may succeed on a later attempt.
// Malformed messages and requests the registry rejects never will; oracle and store
// failures usually do.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidActivity),
		errors.Is(err, entity.ErrUnknownKind),
		errors.Is(err, entity.ErrUnknownOp),
		errors.Is(err, entity.ErrBadParams):
		return false
	}
	return true
}

// ActivityService records user interactions on the user's own entity and on the global log.
type ActivityService struct {
	entities  *entity.Service
	stamper   ActivityStamper
	publisher ActivityPublisher
	global    models.EntityRef
	logger    *logger.Logger
}

// NewActivityService creates the service. With a nil publisher, Submit records synchronously.
func NewActivityService(entities *entity.Service, stamper ActivityStamper, publisher ActivityPublisher, global models.EntityRef, log *logger.Logger) *ActivityService {
	return &ActivityService{
		entities:  entities,
		stamper:   stamper,
		publisher: publisher,
		global:    global,
		logger:    log.WithField("component", "activity"),
	}
}

// Submit stamps a new interaction and either publishes it or records it directly.
func (s *ActivityService) Submit(ctx context.Context, userID, description string) (models.ActivityEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(description) == "" {
		return models.ActivityEvent{}, fmt.Errorf("%w: user_id and description are required", ErrInvalidActivity)
	}
	ev := s.stamper.FetchActivity(description, userID)
	if s.publisher == nil {
		return ev, s.Record(ctx, ev)
	}
	msg := ActivityMessage{
		ID:          ev.ID,
		UserID:      ev.ActorID,
		Description: ev.Description,
		Timestamp:   models.UnixSeconds(ev.Timestamp),
	}
	if err := s.publisher.Publish(ctx, userID, msg); err != nil {
		return ev, fmt.Errorf("publish activity: %w", err)
	}
	return ev, nil
}

// Record merges ev into the actor's entity and appends it to the global log.
// Both are attempted; errors are joined.
func (s *ActivityService) Record(ctx context.Context, ev models.ActivityEvent) error {
	user := models.EntityRef{Kind: models.KindUser, ID: ev.ActorID}
	var errs []error
	for _, ref := range []models.EntityRef{user, s.global} {
		if _, err := s.entities.Dispatch(ctx, entity.Request{Op: entity.OpMerge, Ref: ref, Activity: &ev}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.WithPayload(map[string]interface{}{
		"event_id": ev.ID,
		"user_id":  ev.ActorID,
	}).Debug("activity recorded")
	return nil
}

// HandleMessage is the consumer callback for the activity topic.
func (s *ActivityService) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var am ActivityMessage
	if err := json.Unmarshal(msg.Value, &am); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	if am.UserID == "" || strings.TrimSpace(am.Description) == "" {
		return fmt.Errorf("%w: missing user_id or description", ErrInvalidActivity)
	}
	ev := s.stamper.FetchActivity(am.Description, am.UserID)
	if am.ID != "" {
		ev.ID = am.ID
	}
	if am.Timestamp > 0 {
		ev.Timestamp = models.FromUnixSeconds(am.Timestamp)
	}
	return s.Record(ctx, ev)
}
