package collaborators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"knowmap-backend/application/ports"
)

// HTTPActivityLogger ships UI activity events to the activity service.
// Fire-and-forget: delivery happens on its own goroutine with a detached
// context, and failures are logged at debug and dropped. Activity logging
// must never slow down or fail an editing operation.
type HTTPActivityLogger struct {
	client  *Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewHTTPActivityLogger creates the activity adapter.
func NewHTTPActivityLogger(client *Client, logger *zap.Logger) *HTTPActivityLogger {
	return &HTTPActivityLogger{
		client:  client,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

var _ ports.ActivityLogger = (*HTTPActivityLogger)(nil)

type activityEvent struct {
	Type    string                 `json:"activity_type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Log records one activity event asynchronously.
func (l *HTTPActivityLogger) Log(_ context.Context, activityType string, details map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		event := activityEvent{Type: activityType, Details: details}
		if err := l.client.PostJSON(ctx, "/api/activity", event, nil); err != nil {
			l.logger.Debug("activity event dropped",
				zap.String("activity_type", activityType),
				zap.Error(err))
		}
	}()
}

// NopActivityLogger discards all events. Used when no activity endpoint is
// configured.
type NopActivityLogger struct{}

var _ ports.ActivityLogger = (*NopActivityLogger)(nil)

// Log implements ports.ActivityLogger
func (NopActivityLogger) Log(context.Context, string, map[string]interface{}) {}
