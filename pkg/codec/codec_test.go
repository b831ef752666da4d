package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinSpecs() []Spec {
	return []Spec{
		{Format: Format{Name: "opus", ClockRate: 48000, Channels: 2, Parameters: map[string]string{"useinbandfec": "1", "minptime": "10"}}},
		{Format: Format{Name: "ISAC", ClockRate: 16000, Channels: 1}},
		{Format: Format{Name: "G722", ClockRate: 8000, Channels: 1}},
		{Format: Format{Name: "ILBC", ClockRate: 8000, Channels: 1}},
		{Format: Format{Name: "PCMU", ClockRate: 8000, Channels: 1}},
		{Format: Format{Name: "PCMA", ClockRate: 8000, Channels: 1}},
	}
}

func TestPayloadTypeTable(t *testing.T) {
	tests := []struct {
		name string
		pt   uint8
	}{
		{"PCMU", 0},
		{"PCMA", 8},
		{"G722", 9},
		{"opus", 96},
		{"ISAC", 97},
		{"ILBC", 98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, ok := PayloadType(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.pt, pt)
		})
	}

	// Регистр имени значим
	_, ok := PayloadType("OPUS")
	assert.False(t, ok)
	_, ok = PayloadType("G729")
	assert.False(t, ok)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "PCMU/8000", Format{Name: "PCMU", ClockRate: 8000, Channels: 1}.String())
	assert.Equal(t, "opus/48000/2", Format{Name: "opus", ClockRate: 48000, Channels: 2}.String())

	f := Format{Name: "opus", Parameters: map[string]string{"useinbandfec": "1", "minptime": "10"}}
	assert.Equal(t, "minptime=10;useinbandfec=1", f.Fmtp())
	assert.Empty(t, Format{Name: "PCMA"}.Fmtp())
}

func TestCatalog(t *testing.T) {
	specs := append(builtinSpecs(),
		Spec{Format: Format{Name: "G729", ClockRate: 8000}}, // нет в таблице
		Spec{Format: Format{Name: "PCMU", ClockRate: 8000}}, // повтор
	)
	catalog := NewCatalog(specs)

	assert.Equal(t, 6, catalog.Len())
	assert.Equal(t, []string{"opus", "ISAC", "G722", "ILBC", "PCMU", "PCMA"}, catalog.Names())

	spec, ok := catalog.Lookup("G722")
	require.True(t, ok)
	assert.Equal(t, uint32(8000), spec.Format.ClockRate)

	_, ok = catalog.Lookup("G729")
	assert.False(t, ok, "кодек вне таблицы не должен попадать в каталог")

	// Specs возвращает копию
	copied := catalog.Specs()
	copied[0].Format.Name = "changed"
	assert.Equal(t, "opus", catalog.Names()[0])
}

func TestCatalogSelect(t *testing.T) {
	catalog := NewCatalog(builtinSpecs())

	formats, selected := catalog.Select([]string{"PCMA", "unknown", "opus"})
	assert.Equal(t, []string{"opus", "PCMA"}, selected)
	require.Len(t, formats, 2)
	assert.Equal(t, "PCMA", formats[PayloadTypePCMA].Name)
	assert.Equal(t, "opus", formats[PayloadTypeOpus].Name)

	formats, selected = catalog.Select(nil)
	assert.Empty(t, formats)
	assert.Empty(t, selected)
}

func TestBuildOffer(t *testing.T) {
	catalog := NewCatalog(builtinSpecs())

	offer, err := BuildOffer(OfferParams{
		SessionID: 42,
		LocalIP:   "127.0.0.1",
		LocalPort: 10000,
		Codecs:    catalog.Specs(),
	})
	require.NoError(t, err)

	require.Len(t, offer.MediaDescriptions, 1)
	media := offer.MediaDescriptions[0]
	assert.Equal(t, 10000, media.MediaName.Port.Value)
	assert.Equal(t, []string{"96", "97", "9", "98", "0", "8"}, media.MediaName.Formats)

	raw, err := offer.Marshal()
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, "c=IN IP4 127.0.0.1")
	assert.Contains(t, text, "a=rtpmap:96 opus/48000/2")
	assert.Contains(t, text, "a=fmtp:96 minptime=10;useinbandfec=1")
	assert.Contains(t, text, "a=rtpmap:0 PCMU/8000")
	assert.Contains(t, text, "a=rtcp:10001")
	assert.Contains(t, text, "a=ptime:20")
	assert.True(t, strings.Contains(text, "a=sendrecv"))
}

func TestBuildOfferIPv6(t *testing.T) {
	offer, err := BuildOffer(OfferParams{
		LocalIP:   "::1",
		LocalPort: 20000,
		Codecs:    []Spec{{Format: Format{Name: "PCMU", ClockRate: 8000}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "IP6", offer.Origin.AddressType)
	assert.NotZero(t, offer.Origin.SessionID)
}

func TestBuildOfferErrors(t *testing.T) {
	tests := []struct {
		name   string
		params OfferParams
	}{
		{"невалидный IP", OfferParams{LocalIP: "not-an-ip", LocalPort: 10000, Codecs: builtinSpecs()}},
		{"нулевой порт", OfferParams{LocalIP: "127.0.0.1", LocalPort: 0, Codecs: builtinSpecs()}},
		{"порт без места для RTCP", OfferParams{LocalIP: "127.0.0.1", LocalPort: 65535, Codecs: builtinSpecs()}},
		{"нет кодеков", OfferParams{LocalIP: "127.0.0.1", LocalPort: 10000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildOffer(tt.params)
			assert.Error(t, err)
		})
	}
}
