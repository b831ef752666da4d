// Package codec описывает каталог аудио кодеков, поддерживаемых движком.
//
// Каталог получается от движка один раз при создании клиента и после этого
// не изменяется. Для шести известных кодеков payload type назначается по
// фиксированной таблице: статические номера RFC 3551 для PCMU, PCMA и G722
// и динамические номера по соглашению для opus, ISAC и ILBC.
package codec

import (
	"sort"
	"strconv"
	"strings"
)

// Payload типы встроенных кодеков
const (
	PayloadTypePCMU uint8 = 0
	PayloadTypePCMA uint8 = 8
	PayloadTypeG722 uint8 = 9
	PayloadTypeOpus uint8 = 96 // динамический
	PayloadTypeISAC uint8 = 97 // динамический
	PayloadTypeILBC uint8 = 98 // динамический
)

// payloadTypes фиксированная таблица имя кодека -> payload type.
// Имена сравниваются с учетом регистра, как их отдает движок.
var payloadTypes = map[string]uint8{
	"PCMU": PayloadTypePCMU,
	"PCMA": PayloadTypePCMA,
	"G722": PayloadTypeG722,
	"opus": PayloadTypeOpus,
	"ISAC": PayloadTypeISAC,
	"ILBC": PayloadTypeILBC,
}

// PayloadType возвращает payload type для имени кодека из таблицы
func PayloadType(name string) (uint8, bool) {
	pt, ok := payloadTypes[name]
	return pt, ok
}

// Format описывает аудио формат кодека в терминах SDP (rtpmap + fmtp)
type Format struct {
	Name       string            // Имя кодека ("PCMU", "opus", ...)
	ClockRate  uint32            // RTP частота тактирования
	Channels   uint16            // Количество каналов
	Parameters map[string]string // fmtp параметры
}

// String возвращает формат в виде rtpmap строки (например "PCMU/8000")
func (f Format) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(f.ClockRate), 10))
	if f.Channels > 1 {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(int(f.Channels)))
	}
	return b.String()
}

// Fmtp возвращает fmtp параметры в каноническом порядке ключей
func (f Format) Fmtp() string {
	if len(f.Parameters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.Parameters))
	for k := range f.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f.Parameters[k])
	}
	return strings.Join(parts, ";")
}

// Spec спецификация кодека: имя и формат полезной нагрузки
type Spec struct {
	Format Format
}

// Name возвращает имя кодека
func (s Spec) Name() string {
	return s.Format.Name
}

// PayloadType возвращает payload type кодека по фиксированной таблице
func (s Spec) PayloadType() (uint8, bool) {
	return PayloadType(s.Format.Name)
}
