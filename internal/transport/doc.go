// Package transport delivers a finished payload to the messaging service.
//
// Transports differ in what they can observe. Acknowledged transports (the
// telebot client and the plain JSON POST) see the service's result code, so
// their success is real. Dispatched transports (Beacon) only know the request
// left the process. Order sorts a set so acknowledged transports are tried
// first.
//
// Every failure is a *SendError, which matches ErrTransportFailure. Error text
// never contains the credential.
package transport
