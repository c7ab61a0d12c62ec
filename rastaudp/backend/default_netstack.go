//go:build netstack

package backend

import "github.com/FlorianFrank/rasta-protocol/rastaudp/config"

// Default is the backend used when the configuration names none.
const Default = config.BackendNetstack
