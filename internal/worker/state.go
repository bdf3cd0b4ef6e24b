package worker

// State 描述 Worker 的生命周期阶段。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	// StateRedundant 表示已被新版本 Worker 取代。
	StateRedundant State = "redundant"
)
