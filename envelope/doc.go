// Package envelope defines the framing shared by framesync clients and brokers.
//
// Every message is a small tagged record. The channel field separates
// framesync traffic from anything else on the bus and the type field selects
// one of four messages:
//
//	ready          client -> broker        sourceClientName
//	readyReceived  broker -> one client    payload (full state)
//	stateChange    client -> broker        sourceClientName, payload (fragment)
//	               broker -> clients       sourceClientName, payload (full state)
//	event          client -> broker        name, sourceClientName, payload
//	               broker -> clients       same, plus broadcast=true
//
// Decode never fails loudly: foreign or malformed traffic is simply reported
// as not being an envelope.
package envelope
