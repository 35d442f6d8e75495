package server

import (
	"context"
	"cromp/pkg/protocol"
	"time"
)

// Queues msg as the reply to id
func (server *Server) SendToClient(id protocol.RequestID, msg protocol.Infoton) (result protocol.Outcome) {
	if !server.enabled.Load() {
		result = protocol.NoServer
		return
	}
	if !server.octo.Responses().AddItem(msg, id) {
		result = protocol.TooFull
		return
	}
	result = protocol.OK
	return
}

// Waits for a specific request straight from the client's connection, bypassing the registry
func (server *Server) GetFromClient(ctx context.Context, id protocol.RequestID, timeout time.Duration) (msg protocol.Infoton, result protocol.Outcome) {
	if !server.enabled.Load() {
		result = protocol.NoServer
		return
	}
	record := server.find(id.Entity)
	if record == nil {
		result = protocol.NotFound
		return
	}
	item, result := record.session.RetrieveAndRestore(ctx, id, timeout)
	if result != protocol.OK {
		return
	}
	msg = item.Message
	return
}

// Drops the connection of ent. The record is removed by the next sweep.
func (server *Server) DisconnectEntity(ent protocol.Entity) (found bool) {
	if !server.enabled.Load() {
		return
	}
	record := server.find(ent)
	if record == nil {
		return
	}
	record.croak()
	found = true
	return
}

// Remote address of the connection carrying ent
func (server *Server) FindEntity(ent protocol.Entity) (remote string, found bool) {
	record := server.find(ent)
	if record == nil {
		return
	}
	remote = record.remote
	found = true
	return
}

func (server *Server) find(ent protocol.Entity) (found *clientRecord) {
	server.mu.Lock()
	defer server.mu.Unlock()
	for _, record := range server.clients {
		if record.entity() == ent {
			found = record
			return
		}
	}
	return
}

// Number of client records, including those not yet swept
func (server *Server) Clients() (count int) {
	server.mu.Lock()
	count = len(server.clients)
	server.mu.Unlock()
	return
}

// Replies waiting for pickup across all entities
func (server *Server) Sizes() (items int, bytes int) {
	items, bytes = server.octo.Responses().Sizes()
	return
}

// Listening address, empty while disabled
func (server *Server) Address() (address string) {
	if !server.enabled.Load() || server.listener == nil {
		return
	}
	address = server.listener.Address()
	return
}
