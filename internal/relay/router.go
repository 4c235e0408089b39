package relay

import (
	"sync"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/presence"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Outbound is the transport side the router pushes frames through. Both
// calls must return without waiting on the network.
type Outbound interface {
	// Broadcast queues frame on every live connection
	Broadcast(frame []byte)
	// SendTo queues frame on one connection, reporting whether it was queued
	SendTo(handle string, frame []byte) bool
}

// DeliveryResult is the outcome of a sendMessage event
type DeliveryResult string

const (
	Delivered            DeliveryResult = "delivered"
	DroppedOffline       DeliveryResult = "dropped_offline"
	DroppedUnavailable   DeliveryResult = "dropped_unavailable"
	DroppedInvalid       DeliveryResult = "dropped_invalid"
	RejectedUnregistered DeliveryResult = "rejected_unregistered"
)

// RouterOptions tune router policy and optional collaborators
type RouterOptions struct {
	// RejectUnregisteredSenders drops messages from connections without identity
	RejectUnregisteredSenders bool
	Mirror                    presence.Mirror
	Archive                   MessageArchive
}

// Router applies connect, disconnect and sendMessage events to the presence
// registry and emits the resulting frames.
//
// Connect and disconnect are serialized: each one mutates the registry,
// snapshots it and queues the broadcast before the next starts, so the last
// presence frame a peer receives always matches the registry.
type Router struct {
	registry           *presence.Registry
	out                Outbound
	mirror             presence.Mirror
	archive            MessageArchive
	rejectUnregistered bool
	lifecycle          sync.Mutex
}

// NewRouter creates a router that owns registry
func NewRouter(registry *presence.Registry, out Outbound, opts RouterOptions) *Router {
	mirror := opts.Mirror
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &Router{
		registry:           registry,
		out:                out,
		mirror:             mirror,
		archive:            opts.Archive,
		rejectUnregistered: opts.RejectUnregisteredSenders,
	}
}

// Directory returns the read-only view of the registry
func (r *Router) Directory() presence.Directory {
	return r.registry.ReadOnly()
}

// HandleConnect registers identity for handle when it is valid, then
// broadcasts the online set whether or not registration happened.
func (r *Router) HandleConnect(handle, identity string) bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	orphaned, registered := r.registry.Register(identity, handle)
	if registered {
		r.mirror.Online(identity)
		if orphaned != "" {
			logger.Info("Identity moved to a new connection",
				logger.UserID(identity),
				logger.ConnectionID(handle),
				logger.String("orphaned_connection_id", orphaned),
			)
		} else {
			logger.Info("User registered",
				logger.UserID(identity),
				logger.ConnectionID(handle),
			)
		}
	} else {
		logger.Debug("Connection has no identity, not registered",
			logger.ConnectionID(handle),
			logger.String("identity", identity),
		)
	}

	r.broadcastPresence("connect")
	return registered
}

// HandleDisconnect removes whatever entry handle owns and broadcasts the
// online set unconditionally.
func (r *Router) HandleDisconnect(handle string) (string, bool) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	identity, removed := r.registry.RemoveByHandle(handle)
	if removed {
		r.mirror.Offline(identity)
		logger.Info("User unregistered",
			logger.UserID(identity),
			logger.ConnectionID(handle),
		)
	}

	r.broadcastPresence("disconnect")
	return identity, removed
}

// HandleSendMessage relays payload from the connection identified by
// senderID to the receiver's current connection, or drops it.
func (r *Router) HandleSendMessage(senderHandle, senderID string, payload SendMessagePayload) DeliveryResult {
	result := r.relay(senderHandle, senderID, payload)
	messagesTotal.WithLabelValues(string(result)).Inc()

	if r.archive != nil && result != RejectedUnregistered && result != DroppedInvalid {
		r.archive.Archive(ArchivedMessage{
			SenderID:   senderID,
			ReceiverID: payload.ReceiverID,
			Message:    payload.Message,
			Delivered:  result == Delivered,
			Timestamp:  time.Now().UTC(),
		})
	}
	return result
}

func (r *Router) relay(senderHandle, senderID string, payload SendMessagePayload) DeliveryResult {
	if r.rejectUnregistered && presence.ValidateIdentity(senderID) != nil {
		logger.Debug("Dropping message from unregistered sender",
			logger.ConnectionID(senderHandle),
		)
		return RejectedUnregistered
	}

	receiverHandle, online := r.registry.Lookup(payload.ReceiverID)
	if !online {
		logger.Debug("Receiver offline, dropping message",
			logger.UserID(payload.ReceiverID),
			logger.ConnectionID(senderHandle),
		)
		return DroppedOffline
	}

	frame, err := EncodeServerMessage(EventReceiveMessage, ReceiveMessagePayload{
		Message:  payload.Message,
		SenderID: senderID,
	})
	if err != nil {
		logger.Warn("Failed to encode message",
			logger.ErrorField(err),
			logger.ConnectionID(senderHandle),
		)
		return DroppedInvalid
	}

	if !r.out.SendTo(receiverHandle, frame) {
		logger.Debug("Receiver queue unavailable, dropping message",
			logger.UserID(payload.ReceiverID),
			logger.ConnectionID(receiverHandle),
		)
		return DroppedUnavailable
	}
	return Delivered
}

// broadcastPresence must be called with lifecycle held
func (r *Router) broadcastPresence(trigger string) {
	identities := r.registry.AllIdentities()
	onlineUsers.Set(float64(len(identities)))

	frame, err := EncodeServerMessage(EventGetOnlineUsers, identities)
	if err != nil {
		logger.Error("Failed to encode presence update", logger.ErrorField(err))
		return
	}
	r.out.Broadcast(frame)
	presenceBroadcasts.WithLabelValues(trigger).Inc()
}
