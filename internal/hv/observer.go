package hv

import "log/slog"

// LogObserver emits every exit event through a slog logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o LogObserver) ObserveExit(ev ExitEvent) {
	log := o.logger()

	switch ev := ev.(type) {
	case ExitHalt:
		log.Info("guest halted")
	case ExitShutdown:
		log.Info("guest requested shutdown")
	case ExitIO:
		log.Info("port I/O",
			"direction", ev.Direction.String(),
			"port", ev.Port,
			"size", ev.Size,
			"count", ev.Count)
	case ExitFailEntry:
		log.Error("guest entry failed", "reason", ev.Reason)
	case ExitInternalError:
		log.Error("internal hypervisor error",
			"suberror", ev.Suberror,
			"data", ev.Data)
	case ExitHardware:
		log.Warn("unhandled hardware exit", "reason", ev.Reason)
	case ExitUnknown:
		log.Warn("unhandled exit reason", "reason", ev.Reason)
	}
}

// NopObserver discards all exit events.
type NopObserver struct{}

func (NopObserver) ObserveExit(ExitEvent) {}

var (
	_ ExitObserver = LogObserver{}
	_ ExitObserver = NopObserver{}
)
