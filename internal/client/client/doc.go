// Package client is the boundary to the remote congregation service.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): full snapshot
//     fetches for the main and phone-book data, single-row mutations and a
//     liveness ping.
//  2. A gRPC implementation (see GRPCClient) that speaks JSON over gRPC
//     through a registered codec, injects the session token via an
//     interceptor and maps status codes to sentinel errors.
//
// Payloads are decoded strictly: unknown fields, unknown visit symbols and
// dangling references are rejected with common.ErrDecode, so callers only
// ever see fully typed, self-consistent snapshots. The legacy comma-separated
// token "territories" field is expanded into TokenTerritory rows here.
//
// # Error Handling
//
// ErrUnavailable and ErrUnauthorized wrap common.ErrTransport; match them
// with errors.Is.
package client
