// Package crypto holds the per-device key material and the block cipher
// used on the meter link.
//
// Keys are derived, not exchanged: PBKDF2-HMAC-SHA-256 over a fixed
// password prefix and the device id, salted with the device id padded to
// 16 bytes. The CBC initialization vector is likewise derived from the key
// and device id, so a device always encrypts with the same IV. That is a
// known weakness of the meter protocol and is kept for compatibility with
// deployed devices.
package crypto
