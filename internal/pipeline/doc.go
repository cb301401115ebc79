// Package pipeline is the façade over the audit event flow: producers
// publish change payloads into a FIFO queue, consumers drain the queue
// and persist the records into the owning tenant's database.
//
// Every queue message is an Envelope carrying the tenant's client id
// alongside the normalized records, so a consumer can resolve the
// destination database without out-of-band state. Messages for the
// same table and user share a FIFO group and are therefore applied in
// publish order.
package pipeline
