// Package core contains the credential lifecycle domain: accounts and their
// two token tracks, the backend adapter contract, the retry policy, the
// lifecycle scheduler and the pool assembler. Backend adapters and stores
// depend on this package; core must not depend on them.
package core
