/*
Package eventbus distributes integration events through a message broker and routes commands in-process.

Publishing serializes an event and sends it to the queue named after the event's short type name.
Subscribing records a typed handler in an explicitly owned Registry and starts one ConsumerLoop per
event type; every delivery is decoded once and handed to each registered handler in subscription order.
*/
package eventbus
