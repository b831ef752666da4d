package codec

import (
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// DefaultPtime время пакетизации, объявляемое в offer
const DefaultPtime = 20 * time.Millisecond

// OfferParams параметры SDP offer для одной аудио сессии
type OfferParams struct {
	SessionID   uint64 // 0 - сгенерировать из текущего времени
	SessionName string
	LocalIP     string
	LocalPort   int // RTP порт, RTCP объявляется на LocalPort+1
	Codecs      []Spec
	Ptime       time.Duration
	Direction   string // sendrecv по умолчанию
}

// BuildOffer формирует SDP offer, описывающий локальную RTP точку и кодеки.
// Кодеки без payload типа в таблице пропускаются.
func BuildOffer(params OfferParams) (*sdp.SessionDescription, error) {
	ip, err := netip.ParseAddr(params.LocalIP)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора локального IP '%s': %w", params.LocalIP, err)
	}
	if params.LocalPort <= 0 || params.LocalPort > 65534 {
		return nil, fmt.Errorf("невалидный RTP порт: %d", params.LocalPort)
	}

	addrType := "IP4"
	if ip.Is6() && !ip.Is4In6() {
		addrType = "IP6"
	}
	address := ip.Unmap().String()

	sessionID := params.SessionID
	if sessionID == 0 {
		sessionID = uint64(time.Now().UnixNano())
	}
	sessionName := params.SessionName
	if sessionName == "" {
		sessionName = "-"
	}
	ptime := params.Ptime
	if ptime == 0 {
		ptime = DefaultPtime
	}
	direction := params.Direction
	if direction == "" {
		direction = "sendrecv"
	}

	offer := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    addrType,
			UnicastAddress: address,
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addrType,
			Address:     &sdp.Address{Address: address},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: params.LocalPort},
			Protos:  []string{"RTP", "AVP"},
			Formats: make([]string, 0, len(params.Codecs)),
		},
		Attributes: make([]sdp.Attribute, 0, len(params.Codecs)+3),
	}

	for _, spec := range params.Codecs {
		pt, ok := spec.PayloadType()
		if !ok {
			continue
		}
		media.MediaName.Formats = append(media.MediaName.Formats, strconv.Itoa(int(pt)))
		media.Attributes = append(media.Attributes, sdp.Attribute{
			Key:   "rtpmap",
			Value: fmt.Sprintf("%d %s", pt, spec.Format.String()),
		})
		if fmtp := spec.Format.Fmtp(); fmtp != "" {
			media.Attributes = append(media.Attributes, sdp.Attribute{
				Key:   "fmtp",
				Value: fmt.Sprintf("%d %s", pt, fmtp),
			})
		}
	}
	if len(media.MediaName.Formats) == 0 {
		return nil, fmt.Errorf("нет кодеков для offer")
	}

	// RTCP всегда на соседнем порту
	media.Attributes = append(media.Attributes,
		sdp.Attribute{Key: "rtcp", Value: strconv.Itoa(params.LocalPort + 1)},
		sdp.Attribute{Key: "ptime", Value: strconv.Itoa(int(ptime / time.Millisecond))},
		sdp.Attribute{Key: direction},
	)

	offer.MediaDescriptions = []*sdp.MediaDescription{media}
	return offer, nil
}
