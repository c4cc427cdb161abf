// Package device keeps the registry of mobile clients allowed to issue
// commands. Mutations for the same device ID are serialised through a keyed
// lock; different devices never contend.
package device
