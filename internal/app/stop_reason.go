package app

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopInputDone  StopReason = "input_done"
	StopFatalError StopReason = "fatal_error"
)
