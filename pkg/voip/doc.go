// Package voip реализует контроллер аудио сессии, работающий в одном
// рабочем потоке.
//
// Client принимает вызовы из любых горутин и ставит каждую операцию в
// очередь своего актора. Только задачи актора обращаются к движку,
// каналу и сокетам, поэтому состояние сессии не требует блокировок.
// Результаты изменяющих операций сообщаются через Callback.
//
// Жизненный цикл сессии:
//
//	idle -> starting -> active -> stopping -> idle
//
// При ошибке захвата ресурсов starting возвращается в idle, при ошибке
// остановки движка stopping возвращается в active.
//
// RTP и RTCP передаются по UDP, порт RTCP всегда на единицу больше
// порта RTP как локально, так и на удаленной стороне.
package voip
