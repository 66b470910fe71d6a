/*
Package rabbitmq binds the event bridge to a RabbitMQ topic exchange.

Outbound envelopes are published with the configured routing key; inbound
envelopes arrive on a queue bound to the inbound routing key and are handed to a
bridge.Inbound by Adapter.Listen. NewWithAMQPConn owns a session that redials with
jittered backoff whenever the broker connection drops.
*/
package rabbitmq
