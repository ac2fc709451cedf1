package hooks

import (
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the hooks package
var Logger = logger.GetLogger("hooks")
