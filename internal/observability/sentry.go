package observability

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          os.Getenv("APP_VERSION"),
		ServerName:       serviceName,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(sentryFlushTimeout)
}
