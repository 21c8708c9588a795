/*
Package mediator routes commands and queries to their single in-process handler.
It is the CommandDispatcher behind eventbus.Bus.SendCommand and never touches the broker.
*/
package mediator
