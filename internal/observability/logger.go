package observability

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

const serviceName = "studio-intake"

// Logger emits one JSON object per line on stdout, stamped with the
// service name so aggregated streams stay attributable.
type Logger struct {
	base *log.Logger
}

func NewLogger() *Logger {
	return &Logger{base: log.New(os.Stdout, "", 0)}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.write("info", message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.write("error", message, fields)
}

func (l *Logger) write(level, message string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		payload[k] = v
	}
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["level"] = level
	payload["service"] = serviceName
	payload["message"] = message

	encoded, err := json.Marshal(payload)
	if err != nil {
		l.base.Println(`{"level":"error","service":"` + serviceName + `","message":"failed to encode log"}`)
		return
	}

	l.base.Println(string(encoded))
}
