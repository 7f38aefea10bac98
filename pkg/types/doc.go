// Package types defines the addressing grammar, cluster record variants,
// naming tree nodes, entity handles and configuration shared by the cluster
// store and its callers.
//
// Every Item is addressed by an EntityId (a UUID). Its typed sub-stores are
// reached through a ClusterPath of the form <ClusterType>[/<key>...], where
// the number of keys that identifies exactly one row depends on the type.
package types
