package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"csms/internal/command"
	"csms/internal/notifier"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const requestSubject = "csms.request"

// Notifier bridges the core to operators over NATS: it publishes domain
// events on their topics and serves the request/reply command plane.
type Notifier struct {
	url           string
	conn          *nats.Conn
	sub           *nats.Subscription
	notifications <-chan notifier.Notification
	handlers      map[string]command.HandlerFunc
	timeout       time.Duration
	validate      *validator.Validate
	log           *logrus.Logger
	done          chan struct{}
}

func New(url string, log *logrus.Logger) *Notifier {
	return &Notifier{
		url:      url,
		handlers: make(map[string]command.HandlerFunc),
		timeout:  30 * time.Second,
		validate: validator.New(),
		log:      log,
		done:     make(chan struct{}),
	}
}

func (n *Notifier) SetTimeout(timeout time.Duration) { n.timeout = timeout }

func (n *Notifier) SetChannel(ch <-chan notifier.Notification) { n.notifications = ch }

func (n *Notifier) AddHandler(action string, fn command.HandlerFunc) { n.handlers[action] = fn }

func (n *Notifier) Start() error {
	conn, err := nats.Connect(n.url)
	if err != nil {
		return err
	}
	n.conn = conn

	sub, err := conn.Subscribe(requestSubject, n.handleRequest)
	if err != nil {
		conn.Close()
		return err
	}
	n.sub = sub

	go n.publishLoop()
	return nil
}

func (n *Notifier) Stop() {
	close(n.done)
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	if n.conn != nil {
		n.conn.Close()
		n.log.Info("nats notifier stopped")
	}
}

func (n *Notifier) publishLoop() {
	for {
		select {
		case <-n.done:
			return
		case note, ok := <-n.notifications:
			if !ok {
				return
			}
			data, err := json.Marshal(note.Data)
			if err != nil {
				n.log.Errorf("marshal notification %v: %v", note.Topic, err)
				continue
			}
			if err := n.conn.Publish(note.Topic, data); err != nil {
				n.log.Errorf("publish %v: %v", note.Topic, err)
			}
		}
	}
}

func (n *Notifier) handleRequest(m *nats.Msg) {
	var cmd command.Command
	if err := json.Unmarshal(m.Data, &cmd); err != nil {
		n.respond(m, command.Fail("command.format.not.valid", "command is not valid JSON"))
		return
	}
	if err := n.validate.Struct(&cmd); err != nil {
		n.respond(m, command.Fail("command.format.not.valid", "action and chargePointId are required"))
		return
	}

	fn, ok := n.handlers[cmd.Action]
	if !ok {
		n.respond(m, command.Fail("command.action.not.found", fmt.Sprintf("no such action %q", cmd.Action)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	payload := []byte(cmd.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	n.log.WithFields(logrus.Fields{"client": cmd.ChargePointID, "action": cmd.Action}).Info("operator command")
	n.respond(m, fn(ctx, cmd.ChargePointID, payload))
}

func (n *Notifier) respond(m *nats.Msg, resp command.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		n.log.Errorf("marshal response: %v", err)
		return
	}
	if err := m.Respond(data); err != nil {
		n.log.Errorf("respond: %v", err)
	}
}
