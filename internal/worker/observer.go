package worker

import "time"

// Observer 接收策略与生命周期事件，metrics 包提供 prometheus 实现。
type Observer interface {
	ObserveFetch(worker string, kind Kind, source Source, elapsed time.Duration)
	ObserveLifecycle(worker string, event EventKind, result string)
	ObserveNamespaceDeleted(worker string, namespace string)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, Kind, Source, time.Duration) {}
func (nopObserver) ObserveLifecycle(string, EventKind, string)       {}
func (nopObserver) ObserveNamespaceDeleted(string, string)           {}
