// Package value holds the host value model and the codec that maps it onto
// the values the engine exchanges.
//
// Host values are a closed union (null, bool, number, string, list, object).
// Objects keep insertion order. On the way to the engine an object becomes a
// Record carrying its key order explicitly:
//
//	{"_keys": ["b", "a"], "_object": {"a": 2, "b": 1}}
//
// Decoding a Record rebuilds the object by walking _keys, so a row document
// keeps the engine's column order. A Record naming a key it does not carry is
// a broken engine contract and Decode panics with *ContractViolation.
package value
