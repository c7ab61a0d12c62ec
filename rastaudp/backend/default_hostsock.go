//go:build !netstack

package backend

import "github.com/FlorianFrank/rasta-protocol/rastaudp/config"

// Default is the backend used when the configuration names none. Build
// with -tags netstack to default to the in-process stack.
const Default = config.BackendHostsock
