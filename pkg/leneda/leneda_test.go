package leneda

import (
	"log/slog"

	"github.com/raterudder/leneda/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}
