package collab

// Outbound event names.
const (
	EventPresence      = "presence"
	EventUserJoined    = "user_joined"
	EventNotebookPatch = "notebook_patch"
)

// Inbound event names.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventNotebookEdit = "notebook_edit"
)

// DefaultUsername is announced for joins that carry no display name.
const DefaultUsername = "anon"

type (
	Presence struct {
		Room  string `json:"room"`
		Count int    `json:"count"`
	}

	UserJoined struct {
		Username string `json:"username"`
	}

	// NotebookPatch carries an edit between co-editors. Patch is relayed as
	// received and never inspected.
	NotebookPatch struct {
		Room     string `json:"room"`
		Patch    any    `json:"patch"`
		Username string `json:"username"`
	}
)

// Sender hands one event to one connection's transport.
type Sender interface {
	Send(conn ConnID, event string, payload any) error
}

// Metrics observes the core. All methods must be safe for concurrent use.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	Delivered(event string)
	DeliveryFailed(event string)
	InboundDropped(event, reason string)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened()             {}
func (noopMetrics) ConnectionClosed()             {}
func (noopMetrics) Delivered(string)              {}
func (noopMetrics) DeliveryFailed(string)         {}
func (noopMetrics) InboundDropped(string, string) {}
