package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// initializeStreams provisions the JetStream streams during startup.
func initializeStreams(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) error {
	streamConfigs := []jetstream.StreamConfig{
		{
			Name:     "duel",
			Subjects: []string{"duel.>"},
		},
	}

	for _, streamConfig := range streamConfigs {
		_, err := js.Stream(ctx, streamConfig.Name)
		if err == jetstream.ErrStreamNotFound {
			if _, err := js.CreateStream(ctx, streamConfig); err != nil {
				logger.Error("Failed to create JetStream stream",
					slog.String("stream", streamConfig.Name),
					slog.Any("error", err),
				)
				return fmt.Errorf("failed to create stream %s: %w", streamConfig.Name, err)
			}
			logger.Info("Created JetStream stream", slog.String("stream", streamConfig.Name))
		} else if err != nil {
			return fmt.Errorf("failed to check stream %s: %w", streamConfig.Name, err)
		}
	}
	return nil
}
