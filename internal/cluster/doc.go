// Package cluster defines the vocabulary shared by the controller and its
// worker nodes: node identities, the tagged Message exchanged over node
// channels, the newline-delimited JSON codec, and the Channel contract.
//
// # Overview
//
// The control plane is a tree. The controller (id -1) sits at the root and
// holds a Channel to each direct child. Deeper nodes are reached by
// broadcasting a request to every direct child and relying on each worker
// to forward it further down:
//
//	         ┌────────────┐
//	         │ Controller │ id -1
//	         └─────┬──────┘
//	     ┌─────────┴─────────┐
//	┌────▼────┐         ┌────▼────┐
//	│ Node 1  │         │ Node 4  │   direct children
//	└────┬────┘         └─────────┘
//	┌────▼────┐
//	│ Node 2  │                       reached through node 1
//	└─────────┘
//
// # Message Kinds
//
// Requests: create, ping, exec_add, exec_find.
// Replies: create (new child registered), ping, exec_add (ack),
// exec_found, exec_not_found.
// Unsolicited: heartbeat (config downstream, liveness upstream).
//
// # Wire Format
//
// One JSON object per line:
//
//	{"kind":"exec_add","id":2,"value":5,"aux":0,"key":"x"}
//
// Kinds are encoded by name; an unknown or missing kind fails to decode.
//
// # Channels
//
// Channel.Receive never blocks. Implementations buffer inbound frames so a
// polling loop can sweep many channels per tick without stalling on any one
// of them. See internal/transport for the in-memory and stdio variants.
package cluster
