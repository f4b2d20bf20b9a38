package session

import (
	"context"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/corridor"
)

// respondToFriendRequests answers every incoming request in snap, accepting
// each with probability friend_accept_chance and rejecting it otherwise.
// It runs on the push path and never issues tick actions.
func (s *Session) respondToFriendRequests(ctx context.Context, token string, snap corridor.Snapshot) {
	for _, dir := range snap.IncomingRequests() {
		name := "reject_" + string(dir)
		call := s.api.Reject
		if s.roll() < s.opts.Behavior.FriendAcceptChance {
			name = "accept_" + string(dir)
			call = s.api.Accept
		}

		if err := call(ctx, token, dir); err != nil {
			s.reportFailure("", name, err)
			continue
		}
		s.log.Debug("Answered friend request", "action", name)
		s.publish(bus.EventActionDispatched, "", map[string]string{"action": name, "source": "friend_responder"}, nil)
	}
}
