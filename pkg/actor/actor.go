// Package actor реализует рабочий поток с единственной FIFO очередью задач.
//
// Actor владеет одной горутиной и выполняет отправленные задачи строго в
// порядке поступления. Все изменяемое состояние, которое принадлежит актору,
// читается и изменяется только из его задач, поэтому дополнительная
// синхронизация этого состояния не нужна.
//
// Отправка задачи (Post) никогда не блокирует вызывающего: очередь не
// ограничена. Единственный синхронный примитив - Call, используемый для
// однократной инициализации. Отмены задач нет: поставленная в очередь задача
// всегда выполняется до конца, в том числе при остановке актора.
package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// ErrStopped возвращается при отправке задачи в остановленный актор
var ErrStopped = errors.New("актор остановлен")

// Task единица работы, выполняемая в горутине актора
type Task func()

// Actor однопоточный исполнитель задач
type Actor struct {
	name string
	log  logrus.FieldLogger

	mutex    sync.Mutex
	queue    deque.Deque[Task]
	stopping bool
	started  bool

	wake chan struct{}
	done chan struct{}
}

// New создает актор. Горутина запускается методом Start.
func New(name string, logger logrus.FieldLogger) *Actor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Actor{
		name: name,
		log:  logger.WithFields(logrus.Fields{"component": "actor", "actor": name}),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start запускает рабочую горутину. Повторный вызов ничего не делает.
func (a *Actor) Start() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.started || a.stopping {
		return
	}
	a.started = true
	go a.run()
}

// Post ставит задачу в конец очереди и сразу возвращает управление.
// Возвращает false, если актор уже остановлен; задача при этом не выполняется.
func (a *Actor) Post(task Task) bool {
	if task == nil {
		return false
	}

	a.mutex.Lock()
	if a.stopping {
		a.mutex.Unlock()
		a.log.Debug("задача отброшена: актор остановлен")
		return false
	}
	a.queue.PushBack(task)
	a.mutex.Unlock()

	a.signal()
	return true
}

// Call ставит задачу в очередь и ждет ее выполнения.
// При отмене ctx ожидание прекращается, но задача остается в очереди
// и будет выполнена.
func (a *Actor) Call(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("задача не может быть nil")
	}

	finished := make(chan struct{})
	if !a.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending возвращает количество задач, ожидающих выполнения
func (a *Actor) Pending() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.queue.Len()
}

// Stop прекращает прием новых задач, дожидается выполнения уже поставленных
// и завершает горутину. Нельзя вызывать из задачи самого актора.
func (a *Actor) Stop() {
	a.mutex.Lock()
	if a.stopping {
		a.mutex.Unlock()
		<-a.done
		return
	}
	a.stopping = true
	started := a.started
	if !started {
		// Горутина не запускалась, задачи выполнять некому
		a.queue.Clear()
		close(a.done)
	}
	a.mutex.Unlock()

	if started {
		a.signal()
	}
	<-a.done
}

func (a *Actor) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// run основной цикл: забирает задачи по одной в порядке FIFO
func (a *Actor) run() {
	a.log.Debug("актор запущен")
	defer func() {
		close(a.done)
		a.log.Debug("актор завершен")
	}()

	for {
		a.mutex.Lock()
		for a.queue.Len() == 0 {
			if a.stopping {
				a.mutex.Unlock()
				return
			}
			a.mutex.Unlock()
			<-a.wake
			a.mutex.Lock()
		}
		task := a.queue.PopFront()
		a.mutex.Unlock()

		task()
	}
}
