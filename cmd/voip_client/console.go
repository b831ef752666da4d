package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/arzzra/voip_client/pkg/codec"
	"github.com/arzzra/voip_client/pkg/conductor"
	"github.com/arzzra/voip_client/pkg/voip"
)

const consoleHelp = `Команды:
  local <ip> <port>      локальный адрес (RTCP на port+1)
  remote <ip> <port>     удаленный адрес
  encoder <name>         кодек отправки
  decoders <a,b,...>     кодеки приема
  session on|off         запуск или остановка сессии
  send on|off            отправка звука
  playout on|off         воспроизведение звука
  codecs                 поддерживаемые кодеки
  describe               SDP offer текущих настроек
  help                   эта справка
  quit                   выход`

// Console текстовое представление клиента. Хранит значения формы сессии
// и переводит команды в события представления.
type Console struct {
	out     io.Writer
	catalog *codec.Catalog
	prompt  bool

	mutex   sync.Mutex
	events  conductor.Events
	form    AppConfig
	codecs  []string
	localIP string
}

var _ conductor.View = (*Console)(nil)

// NewConsole создает консоль с начальными значениями формы
func NewConsole(out io.Writer, catalog *codec.Catalog, form AppConfig, prompt bool) *Console {
	return &Console{
		out:     out,
		catalog: catalog,
		prompt:  prompt,
		form:    form,
	}
}

// Bind задает получателя событий
func (c *Console) Bind(events conductor.Events) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.events = events
}

func (c *Console) SetSupportedCodecs(codecs []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.codecs = append([]string(nil), codecs...)
}

// SetLocalIPAddress подставляет адрес в форму, если локальный IP не задан
func (c *Console) SetLocalIPAddress(ip string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.localIP = ip
	if c.form.Local.IP == "" {
		c.form.Local.IP = ip
	}
}

func (c *Console) ShowCompletion(op voip.Operation, ok bool) {
	status := "ok"
	if !ok {
		status = "ошибка"
	}
	c.printf("%s: %s\n", op, status)
}

// Run читает команды до quit, конца ввода или отмены ctx
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.showPrompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := c.Execute(line)
			if err != nil {
				c.printf("%v\n", err)
			}
			if quit {
				return nil
			}
			c.showPrompt()
		}
	}
}

// Execute выполняет одну команду. Возвращает true для quit.
func (c *Console) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		c.printf("%s\n", consoleHelp)
	case "local", "remote":
		addr, err := parseConsoleAddress(args)
		if err != nil {
			return false, err
		}
		c.mutex.Lock()
		if cmd == "local" {
			c.form.Local = addr
		} else {
			c.form.Remote = addr
		}
		c.mutex.Unlock()
	case "encoder":
		if len(args) != 1 {
			return false, fmt.Errorf("использование: encoder <name>")
		}
		c.mutex.Lock()
		c.form.Encoder = args[0]
		events := c.events
		c.mutex.Unlock()
		if events != nil {
			events.OnEncoderUpdate(args[0])
		}
	case "decoders":
		decoders := splitList(strings.Join(args, ","))
		c.mutex.Lock()
		c.form.Decoders = decoders
		events := c.events
		c.mutex.Unlock()
		if events != nil {
			events.OnDecodersUpdate(decoders)
		}
	case "session", "send", "playout":
		on, err := parseSwitch(cmd, args)
		if err != nil {
			return false, err
		}
		c.toggle(cmd, on)
	case "codecs":
		c.mutex.Lock()
		codecs := strings.Join(c.codecs, ", ")
		c.mutex.Unlock()
		c.printf("%s\n", codecs)
	case "describe":
		offer, err := c.describe()
		if err != nil {
			return false, err
		}
		c.printf("%s", offer)
	default:
		return false, fmt.Errorf("неизвестная команда %q, help - список команд", cmd)
	}
	return false, nil
}

func (c *Console) toggle(cmd string, on bool) {
	c.mutex.Lock()
	form := c.form
	events := c.events
	c.mutex.Unlock()
	if events == nil {
		return
	}

	switch cmd {
	case "session":
		events.OnSessionEvent(on, form.Local.IP, form.Local.Port, form.Remote.IP, form.Remote.Port,
			form.Encoder, append([]string(nil), form.Decoders...))
	case "send":
		events.OnSendAudio(on)
	case "playout":
		events.OnPlayoutAudio(on)
	}
}

// describe строит SDP offer из значений формы
func (c *Console) describe() (string, error) {
	c.mutex.Lock()
	form := c.form
	c.mutex.Unlock()

	var specs []codec.Spec
	if spec, ok := c.catalog.Lookup(form.Encoder); ok {
		specs = append(specs, spec)
	}
	for _, name := range form.Decoders {
		if spec, ok := c.catalog.Lookup(name); ok && name != form.Encoder {
			specs = append(specs, spec)
		}
	}

	offer, err := codec.BuildOffer(codec.OfferParams{
		SessionName: "voip_client",
		LocalIP:     form.Local.IP,
		LocalPort:   form.Local.Port,
		Codecs:      specs,
	})
	if err != nil {
		return "", fmt.Errorf("не удалось построить SDP: %w", err)
	}
	data, err := offer.Marshal()
	if err != nil {
		return "", fmt.Errorf("не удалось сериализовать SDP: %w", err)
	}
	return string(data), nil
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) showPrompt() {
	if c.prompt {
		c.printf("> ")
	}
}

func parseConsoleAddress(args []string) (AddressConfig, error) {
	if len(args) != 2 {
		return AddressConfig{}, fmt.Errorf("ожидается <ip> <port>")
	}
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return AddressConfig{}, fmt.Errorf("некорректный порт %q", args[1])
	}
	return AddressConfig{IP: args[0], Port: port}, nil
}

func parseSwitch(cmd string, args []string) (bool, error) {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("использование: %s on|off", cmd)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
