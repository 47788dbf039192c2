// Package password provides the default Argon2id secret hasher in PHC string
// format. The engine consumes only the hash/verify capability; this package
// is one implementation of it.
package password
