// Package redeploy provides experimental hot redeploy of an application's
// container within a unitpool registry.
//
// Redeployer is the core type and performs:
// 1. skip when the deployment hash is unchanged
// 2. build the next container
// 3. start it, so it joins the pool
// 4. take over the old container's shared units
// 5. atomically swap current
// 6. stop the old container, which leaves the pool
//
// The next container resolves the old one's shared units while both are in
// the pool, so those instances stay canonical for the rest of the pool.
//
// This package is EXPERIMENTAL and its API may change before v1.
package redeploy
