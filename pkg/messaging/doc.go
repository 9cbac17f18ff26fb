/*
Package messaging is the runtime messaging bus: named, addressed messages
delivered to permanent per-receiver filters, with optional expected
replies and per-message timeouts. Delivery is point-to-point by
destination name, not fanned out by topic; filters are registered once at
configure time and stay installed for the life of the bus.
*/
package messaging
