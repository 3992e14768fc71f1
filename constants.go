package fiber

import "github.com/evloop/gofiber/internal/constants"

// Re-export constants for public API
const (
	DefaultStackSize            = constants.DefaultStackSize
	MinStackSize                = constants.MinStackSize
	DefaultPendingQueueCapacity = constants.DefaultPendingQueueCapacity
	DefaultKeySlots             = constants.DefaultKeySlots
	DefaultVRBSize              = constants.DefaultVRBSize
	BufferFilePatternEnv        = constants.BufferFilePatternEnv
	DefaultBufferFilePattern    = constants.DefaultBufferFilePattern
)
