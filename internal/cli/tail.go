package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"interview-copilot-service/internal/models"
	"interview-copilot-service/internal/observability/logging"
)

func NewTailCmd(deps *Dependencies) *cobra.Command {
	var (
		brokers []string
		topics  []string
		since   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print turn and status events from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			logging.InitWriter(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"}, cmd.ErrOrStderr())

			if len(brokers) == 0 {
				brokers = cfg.Kafka.Brokers
			}
			if len(brokers) == 0 {
				return errors.New("no Kafka brokers: set KAFKA_BROKERS or --brokers")
			}
			if len(topics) == 0 {
				topics = []string{cfg.Kafka.TopicTurnUpdates, cfg.Kafka.TopicTurnFinal}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := &syncWriter{w: cmd.OutOrStdout()}
			var wg sync.WaitGroup
			for _, topic := range topics {
				wg.Add(1)
				go func(topic string) {
					defer wg.Done()
					consume(ctx, brokers, topic, since, out)
				}(topic)
			}
			wg.Wait()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "Kafka brokers (default KAFKA_BROKERS)")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "Topics to follow (default both turn topics)")
	cmd.Flags().DurationVar(&since, "since", time.Hour, "Replay events newer than this")
	return cmd
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// consume reads partition 0 of topic without a consumer group.
func consume(ctx context.Context, brokers []string, topic string, since time.Duration, out *syncWriter) {
	log := logging.WithComponent("tail").With().Str("topic", topic).Logger()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Msg("Failed to seek, reading from the start")
	}
	log.Info().Dur("since", since).Msg("Following topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Kafka read failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		line, err := formatEvent(msg.Value)
		if err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
			continue
		}
		out.println(line)
	}
}

// formatEvent renders one turn or status event as a single line.
func formatEvent(value []byte) (string, error) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return "", err
	}
	kind := strings.TrimPrefix(head.EventType, "interview.")

	if head.EventType == models.EventSessionStatus {
		var ev models.StatusEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", err
		}
		line := fmt.Sprintf("%s %s %s state=%s text=%q", stamp(ev.Timestamp), ev.SessionID, kind, ev.State, ev.Text)
		if ev.ErrorKind != "" {
			line += fmt.Sprintf(" error=%s", ev.ErrorKind)
		}
		return line, nil
	}

	var ev models.TurnEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return "", err
	}
	if head.EventType == models.EventTranscriptCleared {
		return fmt.Sprintf("%s %s %s", stamp(ev.Timestamp), ev.SessionID, kind), nil
	}
	return fmt.Sprintf("%s %s %s turn=%s index=%d status=%s question=%q answer=%q",
		stamp(ev.Timestamp), ev.SessionID, kind, ev.TurnID, ev.Index, ev.Status, ev.Question, ev.Answer), nil
}

func stamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("15:04:05.000")
}
