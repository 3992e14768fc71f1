package constants

// Default configuration constants.
const (
	// DefaultStackSize is the stack size recorded for a spawned fiber
	// when Spawn is given none. Spawn does not round it to a page.
	DefaultStackSize = 64 * 1024

	// MinStackSize is the smallest stack size Spawn accepts; a smaller
	// request is rejected with an invalid-argument error.
	MinStackSize = 4096

	// DefaultPendingQueueCapacity is not consulted by the scheduler: its
	// pending (transfer-later) queue is an unbounded container/list.
	DefaultPendingQueueCapacity = 64

	// DefaultKeySlots is the number of fiber-local key slots reserved per fiber.
	DefaultKeySlots = 16

	// DefaultVRBSize is a default virtual ring buffer size for callers of
	// fiberbuf.New, which itself always takes an explicit size and does
	// not fall back to this one.
	DefaultVRBSize = 64 * 1024

	// BufferFilePatternEnv names an environment variable for the VRB
	// backing-file template. Nothing in this module reads it: vrb.Init and
	// fiberbuf.New take the pattern as an argument.
	BufferFilePatternEnv = "FBR_BUFFER_FILE_PATTERN"

	// DefaultBufferFilePattern is used when BufferFilePatternEnv is unset.
	// The "*" is replaced by a random suffix, following os.CreateTemp's
	// pattern convention.
	DefaultBufferFilePattern = "/dev/shm/fbr_buffer.*"
)
