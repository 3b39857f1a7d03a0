package relay

import "github.com/BioHazard786/Warpcall/internal/roomcode"

// Room pairs the peer that created a code with at most one guest.
type Room struct {
	// Code is the room code chosen by the owner.
	Code roomcode.Code

	// Owner is the client who created the room. The room ends when it leaves.
	Owner *Client

	// Guest is the client who joined the room.
	Guest *Client
}

// other returns the peer opposite c, or nil.
func (r *Room) other(c *Client) *Client {
	switch c {
	case r.Owner:
		return r.Guest
	case r.Guest:
		return r.Owner
	}
	return nil
}

// member returns the room member with the given peer ID, or nil.
func (r *Room) member(peerID string) *Client {
	if r.Owner != nil && r.Owner.ID.String() == peerID {
		return r.Owner
	}
	if r.Guest != nil && r.Guest.ID.String() == peerID {
		return r.Guest
	}
	return nil
}
