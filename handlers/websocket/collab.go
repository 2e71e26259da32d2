package websocket

import (
	"encoding/json"
	"errors"
	"notebook-server/collab"
	"regexp"
	"strconv"
	"sync"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var errUnknownConnection = errors.New("unknown connection")

// Identity resolves an access token to a display name.
type Identity interface {
	DisplayName(token string) (string, error)
}

// emitter is the part of a Socket.IO socket the sender needs.
type emitter interface {
	Emit(event string, args ...any) error
}

// socketSender delivers core events over the Socket.IO sockets it tracks.
type socketSender struct {
	mu      sync.RWMutex
	sockets map[collab.ConnID]emitter
}

func newSocketSender() *socketSender {
	return &socketSender{sockets: make(map[collab.ConnID]emitter)}
}

func (s *socketSender) add(id collab.ConnID, socket emitter) {
	s.mu.Lock()
	s.sockets[id] = socket
	s.mu.Unlock()
}

func (s *socketSender) remove(id collab.ConnID) {
	s.mu.Lock()
	delete(s.sockets, id)
	s.mu.Unlock()
}

func (s *socketSender) Send(id collab.ConnID, event string, payload any) error {
	s.mu.RLock()
	socket, ok := s.sockets[id]
	s.mu.RUnlock()
	if !ok {
		return errUnknownConnection
	}
	return socket.Emit(event, payload)
}

// SetupSocketIO creates the Socket.IO server and the hub its connections
// feed. Room membership lives in the hub; Socket.IO rooms are not used.
func SetupSocketIO(identity Identity, opts ...collab.Option) (*socketio.Server, *collab.Hub) {
	sender := newSocketSender()
	hub := collab.NewHub(sender, opts...)

	srvOpts := socketio.DefaultServerOptions()
	srvOpts.SetMaxHttpBufferSize(5000000)
	srvOpts.SetPath("/socket.io")
	srvOpts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	srvOpts.SetCors(&types.Cors{
		Origin: []any{
			"tauri://localhost",
			localhostOrigin,
		},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, srvOpts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := collab.ConnID(socket.Id())
		sender.add(me, socket)
		hub.Connect(me)
		utils.Log().Printf("client connected %v\n", me)

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(collab.EventJoinRoom, func(datas ...any) {
			onJoin(hub, identity, me, datas)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(collab.EventLeaveRoom, func(datas ...any) {
			onLeave(hub, me, datas)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(collab.EventNotebookEdit, func(datas ...any) {
			onEdit(hub, me, datas)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			utils.Log().Printf("client disconnected %v\n", me)
			onDisconnect(hub, sender, me)
			socket.RemoveAllListeners("")
		})
	})

	return srv, hub
}

// onJoin joins the room named in the payload. An explicit username wins;
// otherwise the token, if any, names the user.
func onJoin(hub *collab.Hub, identity Identity, me collab.ConnID, datas []any) {
	payload := payloadOf(datas)
	username := stringField(payload, "username")
	if username == "" {
		username = resolveName(identity, stringField(payload, "token"))
	}
	hub.Join(me, roomOf(payload), username)
}

func onLeave(hub *collab.Hub, me collab.ConnID, datas []any) {
	hub.Leave(me, roomOf(payloadOf(datas)))
}

func onEdit(hub *collab.Hub, me collab.ConnID, datas []any) {
	payload := payloadOf(datas)
	hub.Edit(me, roomOf(payload), payload["patch"], stringField(payload, "username"))
}

// onDisconnect drops the connection from every room and forgets its socket.
func onDisconnect(hub *collab.Hub, sender *socketSender, me collab.ConnID) {
	hub.Disconnect(me)
	sender.remove(me)
}

func resolveName(identity Identity, token string) string {
	if identity == nil || token == "" {
		return ""
	}
	name, err := identity.DisplayName(token)
	if err != nil {
		return ""
	}
	return name
}

// payloadOf returns the event's object argument. Clients may send it either
// as an object or as a JSON-encoded string; anything else yields nil.
func payloadOf(datas []any) map[string]any {
	if len(datas) == 0 {
		return nil
	}

	switch v := datas[0].(type) {
	case map[string]any:
		return v
	case string:
		var payload map[string]any
		if err := json.Unmarshal([]byte(v), &payload); err != nil {
			return nil
		}
		return payload
	case []byte:
		var payload map[string]any
		if err := json.Unmarshal(v, &payload); err != nil {
			return nil
		}
		return payload
	}
	return nil
}

// roomOf extracts the room id. Numeric ids are accepted and rendered in
// decimal; a missing or unusable value yields "".
func roomOf(payload map[string]any) string {
	switch v := payload["room"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
