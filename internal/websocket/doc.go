// Package websocket pushes pipeline progress to connected browsers. A Hub
// owns the client set and fans each published message out to every client;
// Progress adapts the hub to the pipeline's stage recorder so long requests
// can be followed live on /api/v1/ws.
package websocket
