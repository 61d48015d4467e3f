// Package mqtt connects the orchestrator to the device message bus.
//
// The package manages:
//   - Topic pattern matching with single-level (+) and multi-level (#) wildcards
//   - A pattern registry that fans one wire subscription out to many handlers
//   - Best-effort publishing with JSON encoding of structured payloads
//   - Resubscription of every registered pattern after a reconnect
//
// Devices and the orchestrator talk through the broker only:
//
//	Orchestrator ↔ MQTT Broker ↔ VR headsets / motion chairs
//
// Publishing is fire-and-forget. A failed publish is returned as a
// *TransportError and logged; no caller waits for a device acknowledgement.
package mqtt
