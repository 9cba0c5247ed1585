package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// InitSlog installs the process-wide slog.Default handler used by the room
// orchestrator, media worker pool and HLS controller. The HTTP/middleware
// layer above (auth, ratelimit, health, tracing) keeps logging through zap
// via Initialize/GetLogger; business logic here logs with log/slog directly,
// matching the split already present in the teacher's session package.
func InitSlog(development bool) {
	if development {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		})))
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}
