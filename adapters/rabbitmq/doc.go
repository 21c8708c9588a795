/*
Package rabbitmq provides the RabbitMQ transport of the event bus.
Every event name maps to a plain queue on the default exchange. A single long-lived
connection is kept with auto-reconnect, and publishes check channels out of a bounded pool.
*/
package rabbitmq
