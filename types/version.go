package types

// Version is the canonical hoist version.
// It is reported by `hoist version` and embedded in archive metadata.
const Version = "0.4.0"

// UserAgent is sent with every request to the deployment API.
const UserAgent = "hoist/" + Version
