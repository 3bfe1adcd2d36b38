package accelsched

import "github.com/coredispatch/accelsched/internal/constants"

// Re-exported device-geometry and tuning limits for callers building
// EngineParams without reaching into internal/constants.
const (
	MaxSlots              = constants.MaxSlots
	MaxCUs                = constants.MaxCUs
	DefaultSlots          = constants.DefaultSlots
	MaxChain              = constants.MaxChain
	MaxDeps               = constants.MaxDeps
	CQSize                = constants.CQSize
	TeardownPollInterval  = constants.TeardownPollInterval
	StuckThreshold        = constants.StuckThreshold
	IOBufferBytesPerTag   = constants.IOBufferBytesPerTag
)
