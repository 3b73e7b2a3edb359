package env

import (
	"github.com/thatsimonsguy/battery-manager/internal/config"
)

// Cfg is the fully-resolved configuration, set once at startup and read-only
// afterwards. Sessions share nothing else.
var Cfg *config.Config
