// Package wire implements the PNCP wire protocol: a typed message model
// and a length-prefixed framing codec.
//
// # Framing
//
// Every frame on the wire is:
//
//	[4-byte big-endian unsigned length][UTF-8 JSON payload of that length]
//
// There is no version field; both ends must agree out of band.
//
// # Messages
//
// Four message types are exchanged:
//
//	auth:        {type:"auth", agent:string, ts:integer-seconds, hmac:hex-string}
//	auth_result: {type:"auth_result", ok:boolean}
//	cmd:         {type:"cmd", id:string, cmd:string}
//	result:      {type:"result", id:string, rc:integer, output:string}
//
// A result's id must equal the id of the cmd it answers; correlation is
// enforced by the dispatcher, not the codec.
//
// Unknown type values decode into an opaque Message carrying the raw
// payload, so unrecognized traffic can be logged without dropping the
// connection.
package wire
