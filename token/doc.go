// Package token signs and verifies the compact signed credentials issued
// by the authority: short-lived access tokens and single-use refresh
// tokens. The codec is stateless; validity is recomputed from the signing
// key and the clock on every parse.
package token
