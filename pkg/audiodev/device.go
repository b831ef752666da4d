// Package audiodev подключает системное аудио устройство (микрофон и
// динамик) к программному движку через malgo.
package audiodev

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

const (
	// SampleRate частота работы устройства; 8 кГц кодеки получают звук через ресемплинг
	SampleRate = 16000
	// bufferLimit максимальная задержка в буферах, 200 мс
	bufferLimit = SampleRate / 5
)

// Device дуплексное аудио устройство. Реализует engine.AudioSource
// (захват) и engine.AudioSink (воспроизведение).
type Device struct {
	log      logrus.FieldLogger
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	captured *pcmBuffer
	playback *pcmBuffer
	once     sync.Once
}

// Open инициализирует и запускает дуплексное устройство по умолчанию
func Open(logger logrus.FieldLogger) (*Device, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "audiodev")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo: " + message)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации аудио контекста: %w", err)
	}

	d := &Device{
		log:      log,
		ctx:      ctx,
		captured: newPCMBuffer(bufferLimit),
		playback: newPCMBuffer(bufferLimit),
	}

	config := malgo.DefaultDeviceConfig(malgo.Duplex)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = SampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: func() {
			log.Warn("аудио устройство остановлено")
		},
	}

	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("ошибка инициализации аудио устройства: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("ошибка запуска аудио устройства: %w", err)
	}
	d.device = device

	log.WithField("sample_rate", SampleRate).Info("аудио устройство запущено")
	return d, nil
}

// onData обменивается сэмплами с устройством
func (d *Device) onData(pOutput, pInput []byte, frameCount uint32) {
	if len(pInput) > 0 {
		d.captured.push(bytesToInt16(pInput))
	}
	if len(pOutput) > 0 {
		out := make([]int16, frameCount)
		d.playback.pop(out)
		int16ToBytes(out, pOutput)
	}
}

// ReadPCM отдает захваченный звук с частотой sampleRate
func (d *Device) ReadPCM(pcm []int16, sampleRate int) {
	if sampleRate == SampleRate || sampleRate <= 0 {
		d.captured.pop(pcm)
		return
	}
	raw := make([]int16, len(pcm)*SampleRate/sampleRate)
	d.captured.pop(raw)
	copy(pcm, resample(raw, SampleRate, sampleRate))
}

// WritePCM ставит звук в очередь воспроизведения
func (d *Device) WritePCM(pcm []int16, sampleRate int) {
	d.playback.push(resample(pcm, sampleRate, SampleRate))
}

// Close останавливает устройство. Повторный вызов безопасен.
func (d *Device) Close() {
	d.once.Do(func() {
		if d.device != nil {
			_ = d.device.Stop()
			d.device.Uninit()
		}
		d.ctx.Uninit()
		d.ctx.Free()
		d.log.Info("аудио устройство закрыто")
	})
}
