// Package auth manages session tokens across layered stores.
//
// The SQLite application store is the authoritative backend; the system
// keyring and an encrypted file can be enabled as mirrors. Reads return
// the first store that holds a token, writes and clears fan out to all
// of them. Mirror failures are logged and never abort an operation, so a
// missing keyring daemon or an unset passphrase degrades gracefully.
package auth
