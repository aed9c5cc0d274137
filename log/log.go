package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: MEETSCRIBE_LOG_PATH environment variable
	envPath := os.Getenv("MEETSCRIBE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	f, err := os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(source string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("source", source).
		Msg("session_start")
}

func SessionEnd(durationS float64, words int, saved bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("duration_s", durationS).
		Int("words", words).
		Bool("saved", saved).
		Msg("session_end")
}

func RecognitionRestart(reason string, attempt int, delayMs int64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("reason", reason).
		Int("attempt", attempt).
		Int64("delay_ms", delayMs).
		Msg("recognition_restart")
}

func StoreMutation(op, id string, count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("op", op).
		Str("id", id).
		Int("count", count).
		Msg("store_mutation")
}

func StoreFallback(op string, err error) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Str("op", op).
		Err(err).
		Msg("store_fallback")
}

func SyncSignal(topic, channel string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("topic", topic).
		Str("channel", channel).
		Msg("sync_signal")
}
