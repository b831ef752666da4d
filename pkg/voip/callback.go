package voip

import (
	"sync/atomic"
)

// Operation асинхронная операция, результат которой сообщается через Callback
type Operation int

const (
	OperationStartSession Operation = iota
	OperationStopSession
	OperationStartSend
	OperationStopSend
	OperationStartPlayout
	OperationStopPlayout
)

func (op Operation) String() string {
	switch op {
	case OperationStartSession:
		return "start_session"
	case OperationStopSession:
		return "stop_session"
	case OperationStartSend:
		return "start_send"
	case OperationStopSend:
		return "stop_send"
	case OperationStartPlayout:
		return "start_playout"
	case OperationStopPlayout:
		return "stop_playout"
	default:
		return "unknown"
	}
}

// Callback получает результаты операций. Методы вызываются из рабочего
// потока клиента; вызовы методов клиента изнутри обработчика допустимы и
// ставятся в очередь за текущей задачей. Close изнутри обработчика
// вызывать нельзя.
type Callback interface {
	OnStartSessionCompleted(ok bool)
	OnStopSessionCompleted(ok bool)
	OnStartSendCompleted(ok bool)
	OnStopSendCompleted(ok bool)
	OnStartPlayoutCompleted(ok bool)
	OnStopPlayoutCompleted(ok bool)
}

// CallbackFuncs адаптер Callback на функциях; незаданные функции пропускаются
type CallbackFuncs struct {
	StartSession func(ok bool)
	StopSession  func(ok bool)
	StartSend    func(ok bool)
	StopSend     func(ok bool)
	StartPlayout func(ok bool)
	StopPlayout  func(ok bool)
}

var _ Callback = CallbackFuncs{}

func (f CallbackFuncs) OnStartSessionCompleted(ok bool) { call(f.StartSession, ok) }
func (f CallbackFuncs) OnStopSessionCompleted(ok bool)  { call(f.StopSession, ok) }
func (f CallbackFuncs) OnStartSendCompleted(ok bool)    { call(f.StartSend, ok) }
func (f CallbackFuncs) OnStopSendCompleted(ok bool)     { call(f.StopSend, ok) }
func (f CallbackFuncs) OnStartPlayoutCompleted(ok bool) { call(f.StartPlayout, ok) }
func (f CallbackFuncs) OnStopPlayoutCompleted(ok bool)  { call(f.StopPlayout, ok) }

func call(fn func(bool), ok bool) {
	if fn != nil {
		fn(ok)
	}
}

// subscription одна подписка на результаты
type subscription struct {
	callback Callback
}

// completionSink не владеющая ссылка на подписчика. После отписки доставка
// молча пропускается.
type completionSink struct {
	current atomic.Pointer[subscription]
}

// subscribe заменяет текущего подписчика и возвращает функцию отписки.
// Отписка действует только пока подписка остается текущей.
func (s *completionSink) subscribe(cb Callback) func() {
	if cb == nil {
		s.current.Store(nil)
		return func() {}
	}
	sub := &subscription{callback: cb}
	s.current.Store(sub)
	return func() {
		s.current.CompareAndSwap(sub, nil)
	}
}

// deliver передает результат подписчику, если он есть
func (s *completionSink) deliver(op Operation, ok bool) bool {
	sub := s.current.Load()
	if sub == nil {
		return false
	}

	cb := sub.callback
	switch op {
	case OperationStartSession:
		cb.OnStartSessionCompleted(ok)
	case OperationStopSession:
		cb.OnStopSessionCompleted(ok)
	case OperationStartSend:
		cb.OnStartSendCompleted(ok)
	case OperationStopSend:
		cb.OnStopSendCompleted(ok)
	case OperationStartPlayout:
		cb.OnStartPlayoutCompleted(ok)
	case OperationStopPlayout:
		cb.OnStopPlayoutCompleted(ok)
	default:
		return false
	}
	return true
}
