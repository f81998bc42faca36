// Command medcast is the CLI for the medcast daemon: it submits runs,
// inspects their progress, and shows the render queue over the daemon's
// HTTP API.
package main
