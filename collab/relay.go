package collab

// EditRelay forwards edit patches to everyone in the room, the sender
// included. Clients reconcile their own echoed patches.
type EditRelay struct {
	router *Router
}

func NewEditRelay(router *Router) *EditRelay {
	return &EditRelay{router: router}
}

// Relay reports whether the patch was forwarded. A patch without a room is
// dropped.
func (e *EditRelay) Relay(room string, patch any, username string) bool {
	if room == "" {
		return false
	}

	e.router.Deliver(room, EventNotebookPatch, NotebookPatch{
		Room:     room,
		Patch:    patch,
		Username: username,
	})
	return true
}
