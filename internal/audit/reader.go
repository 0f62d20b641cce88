// internal/audit/reader.go
package audit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// maxLineBytes bounds one audit line; events carry a truncated target and a
// handful of details, so anything bigger is corrupt.
const maxLineBytes = 1 << 20

// ReadFile returns the events in an audit file that match f, oldest first.
// Lines that do not decode are skipped and counted.
func ReadFile(path string, f Filter) ([]schemas.SecurityEvent, int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening audit file: %w", err)
	}
	defer file.Close()
	return readEvents(file, f)
}

func readEvents(r io.Reader, f Filter) ([]schemas.SecurityEvent, int, error) {
	var events []schemas.SecurityEvent
	skipped := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e schemas.SecurityEvent
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading audit file: %w", err)
	}
	return f.Apply(events), skipped, nil
}

// Follow streams events appended to path to fn until ctx is done. With
// fromStart the existing contents are replayed first. The file may not exist
// yet; it is picked up once the logger creates it.
func Follow(ctx context.Context, path string, fromStart bool, f Filter, logger *zap.Logger, fn func(schemas.SecurityEvent)) error {
	logger = logger.Named("audit_follow")
	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	}
	if !fromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to tail audit file: %w", err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error reading from audit file", zap.Error(line.Err))
				continue
			}
			if line.Text == "" {
				continue
			}
			var e schemas.SecurityEvent
			if err := json.Unmarshal([]byte(line.Text), &e); err != nil {
				logger.Debug("Skipping undecodable audit line", zap.Error(err))
				continue
			}
			if f.Match(e) {
				fn(e)
			}
		}
	}
}
