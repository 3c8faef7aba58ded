package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"coopdoor/console"
)

// Door status payloads.
const (
	DoorLifted  = "lifted"
	DoorLowered = "lowered"
	DoorStopped = "stopped"
)

// Node publishes this coop's status and turns control messages into
// console commands.
type Node struct {
	client *Client
	inbox  *console.Inbox
	log    *zap.Logger
	id     string
}

// NewNode creates the client for node id. Control messages are submitted
// to inbox.
func NewNode(cfg Config, id string, inbox *console.Inbox, log *zap.Logger) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Node{inbox: inbox, log: log.Named("node"), id: id}
	client, err := New(cfg, id, Handlers{
		OnConnect: n.subscribe,
		OnMessage: n.handleMessage,
	}, log)
	if err != nil {
		return nil, err
	}
	n.client = client
	return n, nil
}

func (n *Node) statusTopic(leaf string) string {
	return fmt.Sprintf("coopdoor/status/node/%s/%s", n.id, leaf)
}

func (n *Node) controlTopic(leaf string) string {
	return fmt.Sprintf("coopdoor/control/node/%s/%s", n.id, leaf)
}

// Connect connects in the background.
func (n *Node) Connect() { n.client.Connect() }

// Disconnect closes the broker connection.
func (n *Node) Disconnect() { n.client.Disconnect() }

// Enabled reports whether a broker is configured.
func (n *Node) Enabled() bool { return n.client.IsEnabled() }

func (n *Node) subscribe() {
	for _, leaf := range []string{"door", "config"} {
		if err := n.client.Subscribe(n.controlTopic(leaf)); err != nil {
			n.log.Error("subscribe", zap.Error(err))
		}
	}
}

// PublishDoor reports a finished door movement.
func (n *Node) PublishDoor(status string) {
	n.client.Publish(n.statusTopic("door"), true, status)
}

// PublishBattery reports the battery charge in percent.
func (n *Node) PublishBattery(percent int) {
	n.client.Publish(n.statusTopic("battery"), true, strconv.Itoa(percent))
}

// PublishTime reports whether the clock holds a valid time.
func (n *Node) PublishTime(valid bool) {
	status := "invalid"
	if valid {
		status = "valid"
	}
	n.client.Publish(n.statusTopic("time"), true, status)
}

// PublishFeedback answers a control message.
func (n *Node) PublishFeedback(text string) {
	n.client.Publish(n.statusTopic("feedback"), false, text)
}

func (n *Node) handleMessage(topic string, payload []byte) {
	var cmds []console.Command
	var err error
	switch topic {
	case n.controlTopic("door"):
		var cmd console.Command
		cmd, err = DecodeDoor(payload)
		cmds = []console.Command{cmd}
	case n.controlTopic("config"):
		cmds, err = DecodeConfig(payload)
	default:
		n.log.Debug("ignored message", zap.String("topic", topic))
		return
	}
	if err != nil {
		n.log.Warn("bad control message", zap.String("topic", topic), zap.Error(err))
		n.PublishFeedback("error: " + err.Error())
		return
	}
	if !n.inbox.SubmitAll(cmds) {
		n.PublishFeedback("busy")
		return
	}
	n.PublishFeedback("Data received")
}

// DecodeDoor decodes a door control payload: open, close or stop.
func DecodeDoor(payload []byte) (console.Command, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "open":
		return console.Command{Kind: console.Open}, nil
	case "close":
		return console.Command{Kind: console.Close}, nil
	case "stop":
		return console.Command{Kind: console.Stop}, nil
	default:
		return console.Command{}, fmt.Errorf("unknown door command %q", payload)
	}
}

// ConfigMessage is the configuration document sent by the web form.
// Absent fields leave the current setting alone.
type ConfigMessage struct {
	UTCSeconds           *int64   `json:"UTCSeconds"`
	Timezone             string   `json:"Timezone"`
	Latitude             *float64 `json:"Latitude"`
	Longitude            *float64 `json:"Longitude"`
	DoorControl          string   `json:"DoorControl"`
	AutomaticOpeningTime string   `json:"AutomaticOpeningTime"`
	AutomaticClosingTime string   `json:"AutomaticClosingTime"`
}

// DecodeConfig decodes a configuration document into the commands that
// apply it, ending with Apply. A time without a timezone keeps the
// configured zone; the loop fills it in.
func DecodeConfig(payload []byte) ([]console.Command, error) {
	var msg ConfigMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var cmds []console.Command
	if msg.UTCSeconds != nil {
		if *msg.UTCSeconds < 0 {
			return nil, fmt.Errorf("invalid UTCSeconds %d", *msg.UTCSeconds)
		}
		cmds = append(cmds, console.Command{Kind: console.SetTime, UTCSeconds: *msg.UTCSeconds, Timezone: msg.Timezone})
	}
	if (msg.Latitude == nil) != (msg.Longitude == nil) {
		return nil, fmt.Errorf("latitude and longitude must be set together")
	}
	if msg.Latitude != nil {
		cmds = append(cmds, console.Command{Kind: console.SetLocation, Latitude: *msg.Latitude, Longitude: *msg.Longitude})
	}
	if msg.DoorControl != "" {
		cmds = append(cmds, console.Command{Kind: console.SetMode, Mode: msg.DoorControl})
	}
	if msg.AutomaticOpeningTime != "" {
		cmds = append(cmds, console.Command{Kind: console.SetOpenTime, Clock: msg.AutomaticOpeningTime})
	}
	if msg.AutomaticClosingTime != "" {
		cmds = append(cmds, console.Command{Kind: console.SetCloseTime, Clock: msg.AutomaticClosingTime})
	}
	if len(cmds) == 0 {
		return nil, fmt.Errorf("empty config message")
	}
	return append(cmds, console.Command{Kind: console.Apply}), nil
}
