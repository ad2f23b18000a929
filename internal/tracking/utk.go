package tracking

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/cookies"
)

// UTK polling budgets. Mobile visitors get longer because the tracking
// script loads later there.
const (
	UTKDesktopTimeout = 10 * time.Second
	UTKMobileTimeout  = 15 * time.Second
	UTKPollInterval   = time.Second
)

// ErrNoUTK is returned when the visitor token never appears.
var ErrNoUTK = eris.New("tracking: hubspotutk cookie not set")

// AwaitUTK polls the jar for the hubspotutk cookie until it appears or the
// budget for the device class runs out.
func AwaitUTK(ctx context.Context, j cookies.Jar, mobile bool) (string, error) {
	timeout := UTKDesktopTimeout
	if mobile {
		timeout = UTKMobileTimeout
	}
	return pollUTK(ctx, j, timeout, UTKPollInterval)
}

func pollUTK(ctx context.Context, j cookies.Jar, timeout, interval time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if utk, ok := cookies.HubspotUTK.Get(j); ok {
			return utk, nil
		}
		select {
		case <-ctx.Done():
			return "", ErrNoUTK
		case <-ticker.C:
		}
	}
}
