package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// WriteNDJSON tails sessionID's stream from sinceSequence and writes one
// JSON-encoded ProgressEvent per line to w, per the external NDJSON
// transport contract — used by cmd/veritas-cli's progress printer.
func WriteNDJSON(ctx context.Context, s *Stream, w io.Writer, sessionID string, sinceSequence int64) error {
	ch, unsubscribe, err := s.Subscribe(ctx, sessionID, sinceSequence)
	if err != nil {
		return err
	}
	defer unsubscribe()

	enc := json.NewEncoder(w)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("stream.WriteNDJSON: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
