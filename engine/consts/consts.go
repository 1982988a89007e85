package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the default read buffer size of connections, overridden by [netlib] read_buffer_size
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the default write buffer size of connections, overridden by [netlib] write_buffer_size
	BUFFERED_WRITE_BUFFSIZE = 16384
	// MAX_PAYLOAD_LENGTH is the maximum payload length of one packet
	MAX_PAYLOAD_LENGTH = 4 * 1024 * 1024
	// CLIENT_SET_TCP_NO_DELAY = true sets client connections to TcpNoDelay
	CLIENT_SET_TCP_NO_DELAY = true
	// HANDSHAKE_TIMEOUT is the time a new connection has to present its protocol handshake
	HANDSHAKE_TIMEOUT = time.Second * 10
	// UPLINK_RECONNECT_INTERVAL is the interval between two connect attempts to the master
	UPLINK_RECONNECT_INTERVAL = time.Second * 3
	// CONNECTION_SEND_QUEUE_SIZE is the number of packets a connection queues for its send routine.
	// A peer that lets the queue fill up is disconnected.
	CONNECTION_SEND_QUEUE_SIZE = 4096
	// CONNECTION_CLOSE_FLUSH_TIMEOUT is how long a closing connection may take to flush its queued packets
	CONNECTION_CLOSE_FLUSH_TIMEOUT = time.Second * 3

	// For Services
	// SERVICE_PACKET_QUEUE_SIZE is the max packet queue length of a service main routine
	SERVICE_PACKET_QUEUE_SIZE = 10000
	// SERVICE_TICK_INTERVAL is the tick interval of the main routine => affect timer resolution
	SERVICE_TICK_INTERVAL = time.Millisecond * 10
	// SYNC_TICK_INTERVAL is the interval to flush dirty character state to clients
	SYNC_TICK_INTERVAL = time.Millisecond * 100
	// SESSION_SWEEP_INTERVAL is the interval of disconnect timer checks
	SESSION_SWEEP_INTERVAL = time.Second

	// For Async Jobs
	// ASYNC_JOB_QUEUE_MAXLEN is the max length of each async job group queue
	ASYNC_JOB_QUEUE_MAXLEN = 10000
	// ASYNC_JOB_GROUP_AUTH is the async job group of credential checks
	ASYNC_JOB_GROUP_AUTH = "auth"

	// For Requests Crossing Nodes
	// VERIFY_PASSWORD_TIMEOUT is the time a world waits for the master to answer a password check
	VERIFY_PASSWORD_TIMEOUT = time.Second * 10

	// For Parties
	// PARTY_MAX_MEMBER_COUNT is the capacity of a party
	PARTY_MAX_MEMBER_COUNT = 7
	// PARTY_MAX_INVENTORY_SLOT_COUNT is the capacity of the shared party inventory
	PARTY_MAX_INVENTORY_SLOT_COUNT = 64
	// PARTY_MAX_QUEST_SLOT_COUNT is the capacity of the shared party quest slots
	PARTY_MAX_QUEST_SLOT_COUNT = 5
	// PARTY_MAX_QUEST_FLAG_COUNT is the number of party quest flags
	PARTY_MAX_QUEST_FLAG_COUNT = 512
	// PARTY_INVITATION_TIMEOUT is the lifetime of an unanswered party invitation
	PARTY_INVITATION_TIMEOUT = time.Second * 30
	// CHARACTER_MAX_NAME_LENGTH is the max length of character names
	CHARACTER_MAX_NAME_LENGTH = 16

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_ROUTER prints routing decisions
	DEBUG_ROUTER = false
	// DEBUG_CLIENTS prints clients operation debug logs
	DEBUG_CLIENTS = false
	// DEBUG_INSTANCES prints dungeon instance open/close debug logs
	DEBUG_INSTANCES = false
	// DEBUG_SYNC prints sync flush debug logs
	DEBUG_SYNC = false
	// DEBUG_PACKET_ALLOC prints packet allocation debug logs
	DEBUG_PACKET_ALLOC = false
)

//  System level configurations
const (
	// DEBUG_MODE = true turns on debug mode
	DEBUG_MODE = false
)
