package signaling

// maxMembers is the hard cap on room size; calls are strictly one-on-one.
const maxMembers = 2

// Room is one two-party coordination unit. Members are kept in join order:
// the first member is the one told to create the offer once the room is
// full, so ordering here is load-bearing.
type Room struct {
	ID      string
	members []*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id}
}

func (r *Room) full() bool  { return len(r.members) >= maxMembers }
func (r *Room) empty() bool { return len(r.members) == 0 }

func (r *Room) add(c *Client) {
	r.members = append(r.members, c)
}

// remove drops c from the member list, preserving the order of the rest.
func (r *Room) remove(c *Client) {
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// first returns the initiator-designate: the earliest-joined member.
func (r *Room) first() *Client {
	if len(r.members) == 0 {
		return nil
	}
	return r.members[0]
}

// other returns the member that is not c, or nil if c is alone.
func (r *Room) other(c *Client) *Client {
	for _, m := range r.members {
		if m != c {
			return m
		}
	}
	return nil
}
