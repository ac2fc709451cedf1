package lockmgr

import (
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the lockmgr package
var Logger = logger.GetLogger("lockmgr")

// NewOwner creates a new unique owner token.
// It can be used by callers that have no natural owner identity.
func NewOwner() string {
	return uuid.NewString()
}
