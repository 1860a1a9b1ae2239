package debug

// Tselector names a class of debug output.
type Tselector string

const (
	ALWAYS Tselector = "ALWAYS"
	NEVER  Tselector = "NEVER"
)

// Kernel
const (
	BOOT  Tselector = "BOOT"
	SCHED Tselector = "SCHED"
	ASYNC Tselector = "ASYNC"
	TRAP  Tselector = "TRAP"
	TASK  Tselector = "TASK"
)

// Services
const (
	VFS     Tselector = "VFS"
	CONSOLE Tselector = "CONSOLE"
	INITRD  Tselector = "INITRD"
)

// Tests
const (
	TEST Tselector = "TEST"
)
